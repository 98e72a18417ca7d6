package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"smartid-backend/internal/platform/logging"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff" // 警備員・キオスク担当

	minPasswordLen = 8
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// Claims: JWT のペイロード。sub はアカウント ID
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    logging.Logger
}

func NewService(store AccountStore, secret []byte, ttl time.Duration, log logging.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{store: store, secret: secret, ttl: ttl, now: time.Now, log: log}
}

// Secret: RequireAuth に渡す署名鍵
func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Login(ctx context.Context, id, password string) (Token, error) {
	acct, err := s.store.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Token{}, err
	}
	// 存在しない / 無効 / パスワード不一致 は区別しない
	if acct == nil || acct.IsDisabled {
		return Token{}, ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrAuthFailed
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, err
	}
	s.log.Info(ctx, "login", "account", acct.ID, "role", acct.Role)
	return Token{Token: signed, ExpiresAt: exp.UTC()}, nil
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(password) < minPasswordLen {
		return ErrInvalidInput
	}
	if role != RoleAdmin && role != RoleStaff {
		return ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	})
}

// EnsureAccount: 起動時の初期管理者。既にある、または id / password が空なら何もしない
func (s *Service) EnsureAccount(ctx context.Context, id, password, role string) (bool, error) {
	if id == "" || password == "" {
		return false, nil
	}
	err := s.Register(ctx, id, password, role)
	if errors.Is(err, ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Info(ctx, "bootstrap account created", "account", id, "role", role)
	return true, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

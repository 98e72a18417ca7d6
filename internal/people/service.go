package people

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/width"

	"smartid-backend/internal/platform/db"
	"smartid-backend/internal/platform/logging"
)

const (
	maxCodeLen  = 32
	maxNameLen  = 255
	maxPhoneLen = 32
)

// RecordPurger: 人物削除の前に入退場履歴を消す（台帳側の DeleteAllForPerson）
type RecordPurger interface {
	DeleteAllForPerson(ctx context.Context, personID string) (int64, error)
}

type Service struct {
	db     *sql.DB
	store  *Store
	purger RecordPurger
	now    func() time.Time
	newID  func() (string, error)
	log    logging.Logger
}

func NewService(conn *sql.DB, purger RecordPurger, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		db:     conn,
		store:  NewStore(conn),
		purger: purger,
		now:    time.Now,
		newID:  func() (string, error) { return ulid.Make().String(), nil },
		log:    log,
	}
}

// NormalizeCode: 全角英数を半角にし、前後空白を除いて大文字化する（"ａｐｐ０１" → "APP01"）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(width.Fold.String(code)))
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Person, error) {
	code := NormalizeCode(req.EnrollmentCode)
	name := strings.TrimSpace(req.DisplayName)
	phone := strings.TrimSpace(width.Fold.String(req.Phone))

	switch {
	case code == "":
		return Person{}, NewInvalidArgumentError("enrollment_code is required")
	case len(code) > maxCodeLen:
		return Person{}, NewInvalidArgumentError("enrollment_code is too long")
	case name == "":
		return Person{}, NewInvalidArgumentError("display_name is required")
	case len(name) > maxNameLen:
		return Person{}, NewInvalidArgumentError("display_name is too long")
	case len(phone) > maxPhoneLen:
		return Person{}, NewInvalidArgumentError("phone is too long")
	}

	id, err := s.newID()
	if err != nil {
		return Person{}, wrapStorage("generate id", err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	p := Person{
		PersonID:       id,
		EnrollmentCode: code,
		DisplayName:    name,
		PhotoRef:       strings.TrimSpace(req.PhotoRef),
		Phone:          phone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		if errors.Is(err, errDuplicateCode) {
			return Person{}, NewConflictError("enrollment_code already registered")
		}
		return Person{}, wrapStorage("insert person", err)
	}
	s.log.Info(ctx, "person registered", "person_id", p.PersonID, "enrollment_code", p.EnrollmentCode)
	return p, nil
}

// ResolveByCode: 学籍番号から人物を引く。見つからなければ ErrNotFound を包んだエラー
func (s *Service) ResolveByCode(ctx context.Context, code string) (Person, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Person{}, NewInvalidArgumentError("enrollment_code is required")
	}
	p, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return Person{}, wrapStorage("get person by code", err)
	}
	return p, nil
}

// Lookup: 学籍番号と電話番号の両方が一致したときだけ返す。どちらかが違えば NotFound
func (s *Service) Lookup(ctx context.Context, code, phone string) (Person, error) {
	code = NormalizeCode(code)
	phone = strings.TrimSpace(width.Fold.String(phone))
	if code == "" || phone == "" {
		return Person{}, NewInvalidArgumentError("enrollment_code and phone are required")
	}
	items, _, err := s.store.List(ctx, ListQuery{EnrollmentCode: code, Phone: phone, Limit: 1})
	if err != nil {
		return Person{}, wrapStorage("lookup person", err)
	}
	if len(items) == 0 {
		return Person{}, NewNotFoundError("no person matches enrollment_code and phone")
	}
	return items[0], nil
}

func (s *Service) Get(ctx context.Context, personID string) (Person, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return Person{}, NewInvalidArgumentError("person_id is required")
	}
	p, err := s.store.GetByID(ctx, personID)
	if err != nil {
		return Person{}, wrapStorage("get person", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Person, int64, error) {
	if q.EnrollmentCode != "" {
		q.EnrollmentCode = NormalizeCode(q.EnrollmentCode)
	}
	q.Phone = strings.TrimSpace(width.Fold.String(q.Phone))
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, wrapStorage("list people", err)
	}
	return items, total, nil
}

// Update: 表示名・写真・電話番号のみ。読み直しまで同じ Tx で行う
func (s *Service) Update(ctx context.Context, personID string, req UpdateRequest) (Person, error) {
	var out Person
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		st := NewStore(tx)
		p, err := st.GetByID(ctx, personID)
		if err != nil {
			return err
		}
		if req.DisplayName != nil {
			name := strings.TrimSpace(*req.DisplayName)
			if name == "" || len(name) > maxNameLen {
				return NewInvalidArgumentError("display_name must be 1..255 chars")
			}
			p.DisplayName = name
		}
		if req.PhotoRef != nil {
			p.PhotoRef = strings.TrimSpace(*req.PhotoRef)
		}
		if req.Phone != nil {
			phone := strings.TrimSpace(width.Fold.String(*req.Phone))
			if len(phone) > maxPhoneLen {
				return NewInvalidArgumentError("phone is too long")
			}
			p.Phone = phone
		}
		p.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		if _, err := st.Update(ctx, p); err != nil {
			return err
		}
		out, err = st.GetByID(ctx, personID)
		return err
	})
	if err != nil {
		return Person{}, wrapStorage("update person", err)
	}
	return out, nil
}

// Delete: 入退場履歴 → 本人 の順に消す。途中で失敗しても再実行すればよい
func (s *Service) Delete(ctx context.Context, personID string) (int64, error) {
	p, err := s.Get(ctx, personID)
	if err != nil {
		return 0, err
	}

	var purged int64
	if s.purger != nil {
		purged, err = s.purger.DeleteAllForPerson(ctx, p.PersonID)
		if err != nil {
			return 0, wrapStorage("purge attendance", err)
		}
	}
	if _, err := s.store.Delete(ctx, p.PersonID); err != nil {
		return purged, wrapStorage("delete person", err)
	}
	s.log.Info(ctx, "person deleted", "person_id", p.PersonID, "purged_records", purged)
	return purged, nil
}

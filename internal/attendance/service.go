package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"smartid-backend/internal/platform/logging"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

// ulid.Make はプロセス共有の単調増加エントロピーを使う
func (ulidGen) New() (string, error) {
	return ulid.Make().String(), nil
}

const (
	DefaultMethod    = "qr_and_face"
	DefaultStation   = "main_entrance"
	DefaultClockSkew = 5 * time.Minute

	// 作成 / 退出の競合に負けたときの試行回数（初回 + 再試行1回）
	maxAttempts = 2

	maxIDLen   = 64
	maxNameLen = 255
)

type Options struct {
	Location       *time.Location // 日付境界のタイムゾーン。nil なら time.Local
	ClockSkew      time.Duration  // 未来方向に許す時計ずれ
	DefaultMethod  string
	DefaultStation string
	Logger         logging.Logger
}

// ===== Service本体 =====

// Service: 入退場台帳。呼び出し間で状態を持たず、判定はすべて Store を読んで行う
type Service struct {
	store          Store
	clock          Clock
	id             IDGen
	log            logging.Logger
	loc            *time.Location
	skew           time.Duration
	defaultMethod  string
	defaultStation string
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:          store,
		clock:          realClock{},
		id:             ulidGen{},
		log:            opts.Logger,
		loc:            opts.Location,
		skew:           opts.ClockSkew,
		defaultMethod:  opts.DefaultMethod,
		defaultStation: opts.DefaultStation,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.skew <= 0 {
		s.skew = DefaultClockSkew
	}
	if s.defaultMethod == "" {
		s.defaultMethod = DefaultMethod
	}
	if s.defaultStation == "" {
		s.defaultStation = DefaultStation
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// Day: "YYYY-MM-DD" / "today" を台帳のタイムゾーンで日付範囲にする
func (s *Service) Day(v string) (DayWindow, error) {
	w, err := ParseDay(v, s.clock.Now(), s.loc)
	if err != nil {
		return DayWindow{}, ErrInvalid("date must be YYYY-MM-DD or 'today'")
	}
	return w, nil
}

// RecordScan: スキャン1回を入場か退出として記録する。
// その日の open レコードがあれば閉じ（exit）、無ければ作る（entry）
func (s *Service) RecordScan(ctx context.Context, in ScanInput) (Record, Outcome, error) {
	in, err := s.normalize(in)
	if err != nil {
		return Record{}, "", err
	}

	now := s.clock.Now()
	supplied := !in.OccurredAt.IsZero()
	at := in.OccurredAt
	if !supplied {
		at = now
	}
	// 保存精度（ミリ秒）に揃える
	at = at.Truncate(time.Millisecond)
	if at.After(now.Add(s.skew)) {
		return Record{}, "", invalidTimestamp("occurred_at is in the future")
	}
	win := LocalDayWindow(at, s.loc)
	log := s.log.With("person_id", in.PersonID, "day", win.Key())

	// 日付に関係なく、最新の未退出レコードより前の時刻は受け付けない
	latest, err := s.store.LatestOpen(ctx, in.PersonID)
	if err != nil {
		return Record{}, "", storageErr("find latest open record", err)
	}
	if latest != nil && at.Before(latest.EntryAt) && (supplied || !win.Contains(latest.EntryAt)) {
		return Record{}, "", invalidTimestamp("occurred_at precedes the entry of an open record")
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		open, err := s.store.FindOpen(ctx, in.PersonID, win)
		if err != nil {
			return Record{}, "", storageErr("find open record", err)
		}

		if open != nil {
			if at.Before(open.EntryAt) {
				if supplied {
					return Record{}, "", invalidTimestamp("exit time precedes entry time")
				}
				// 競合で後から入った入場の方が時刻が新しい場合
				at = open.EntryAt
			}
			closed, err := s.store.Close(ctx, open.RecordID, at)
			if errors.Is(err, errAlreadyClosed) {
				log.Warn(ctx, "close lost to concurrent scan", "record_id", open.RecordID, "attempt", attempt)
				continue
			}
			if err != nil {
				return Record{}, "", storageErr("close record", err)
			}
			log.Info(ctx, "exit recorded", "record_id", closed.RecordID, "station_id", in.StationID)
			return closed, OutcomeExit, nil
		}

		id, err := s.id.New()
		if err != nil {
			return Record{}, "", &APIError{Code: CodeInternal, Message: "failed to generate id", err: err}
		}
		rec := Record{
			RecordID:           id,
			PersonID:           in.PersonID,
			DisplayName:        in.DisplayName,
			EntryAt:            at.UTC(),
			VerificationMethod: in.VerificationMethod,
			ConfidenceScore:    in.ConfidenceScore,
			StationID:          in.StationID,
		}
		err = s.store.Insert(ctx, rec, win)
		if errors.Is(err, errConcurrentCreationLost) {
			log.Warn(ctx, "entry creation lost to concurrent scan", "attempt", attempt)
			continue
		}
		if err != nil {
			return Record{}, "", storageErr("insert record", err)
		}
		log.Info(ctx, "entry recorded", "record_id", rec.RecordID, "station_id", in.StationID)
		return rec, OutcomeEntry, nil
	}

	log.Error(ctx, "scan gave up after concurrent writes", "attempts", maxAttempts)
	return Record{}, "", ErrConflict("concurrent scans for the same person; retry")
}

// ListForDay: その日に入場したレコード（entry 降順）
func (s *Service) ListForDay(ctx context.Context, day DayWindow) ([]Record, error) {
	recs, err := s.store.ListBetween(ctx, day.Start, day.End)
	if err != nil {
		return nil, storageErr("list day", err)
	}
	return recs, nil
}

// ListForPerson: 新しい順。未知の person は空配列。limit 0 は全件、MaxPageLimit 超は 400
func (s *Service) ListForPerson(ctx context.Context, personID string, limit int) ([]Record, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, ErrInvalid("person_id is required")
	}
	if limit < 0 || limit > MaxPageLimit {
		return nil, ErrInvalid(fmt.Sprintf("limit must be within 0..%d", MaxPageLimit))
	}
	recs, err := s.store.ListByPerson(ctx, personID, limit)
	if err != nil {
		return nil, storageErr("list person", err)
	}
	return recs, nil
}

// DeleteAllForPerson: その人の全レコードを削除。何度呼んでもよい
func (s *Service) DeleteAllForPerson(ctx context.Context, personID string) (int64, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return 0, ErrInvalid("person_id is required")
	}
	n, err := s.store.DeleteByPerson(ctx, personID)
	if err != nil {
		return 0, storageErr("delete person records", err)
	}
	s.log.Info(ctx, "attendance purged", "person_id", personID, "deleted", n)
	return n, nil
}

// DayStats: 入場数・退場数・在場数
func (s *Service) DayStats(ctx context.Context, day DayWindow) (DayStats, error) {
	recs, err := s.ListForDay(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	st := DayStats{Date: day.Key(), Entries: len(recs)}
	people := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if r.IsOpen() {
			st.Inside++
		} else {
			st.Exits++
		}
		people[r.PersonID] = struct{}{}
	}
	st.UniquePeople = len(people)
	return st, nil
}

func (s *Service) normalize(in ScanInput) (ScanInput, error) {
	in.PersonID = strings.TrimSpace(in.PersonID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.VerificationMethod = strings.TrimSpace(in.VerificationMethod)
	in.StationID = strings.TrimSpace(in.StationID)

	if in.PersonID == "" {
		return in, ErrInvalid("person_id is required")
	}
	if len(in.PersonID) > maxIDLen {
		return in, ErrInvalid("person_id is too long")
	}
	if in.DisplayName == "" {
		return in, ErrInvalid("display_name is required")
	}
	if len(in.DisplayName) > maxNameLen {
		return in, ErrInvalid("display_name is too long")
	}
	if c := in.ConfidenceScore; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 100) {
		return in, ErrInvalid("confidence_score must be within 0..100")
	}
	if in.VerificationMethod == "" {
		in.VerificationMethod = s.defaultMethod
	}
	if in.StationID == "" {
		in.StationID = s.defaultStation
	}
	return in, nil
}

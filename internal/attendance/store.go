package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartid-backend/internal/platform/db"
)

// Store: 台帳の永続化。実装は SQLStore（MySQL / SQLite）と MemoryStore
type Store interface {
	// FindOpen: day 内に入場した未退出レコード。無ければ nil, nil
	FindOpen(ctx context.Context, personID string, day DayWindow) (*Record, error)
	// LatestOpen: 日付を問わず entry が最も新しい未退出レコード。無ければ nil, nil
	LatestOpen(ctx context.Context, personID string) (*Record, error)
	// Insert: (person_id, entry_day) の open が既にあれば errConcurrentCreationLost
	Insert(ctx context.Context, rec Record, day DayWindow) error
	// Close: 条件付きで exit を埋める。既に閉じていれば errAlreadyClosed
	Close(ctx context.Context, recordID string, exitAt time.Time) (Record, error)
	// ListBetween: entry が [from, to) のレコードを entry 降順で
	ListBetween(ctx context.Context, from, to time.Time) ([]Record, error)
	// ListByPerson: 新しい順。limit <= 0 なら全件
	ListByPerson(ctx context.Context, personID string, limit int) ([]Record, error)
	DeleteByPerson(ctx context.Context, personID string) (int64, error)
}

type SQLStore struct {
	db  db.DBTX
	now func() time.Time
}

func NewSQLStore(conn db.DBTX) *SQLStore {
	return &SQLStore{db: conn, now: time.Now}
}

const selectRecord = `
	SELECT record_id, person_id, display_name, entry_at_ms, exit_at_ms,
	       verification_method, confidence_score, station_id
	FROM attendance_records`

func (s *SQLStore) FindOpen(ctx context.Context, personID string, day DayWindow) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`
	WHERE person_id = ?
	  AND entry_at_ms >= ? AND entry_at_ms < ?
	  AND exit_at_ms IS NULL
	ORDER BY entry_at_ms DESC
	LIMIT 1`,
		personID, day.Start.UnixMilli(), day.End.UnixMilli(),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) LatestOpen(ctx context.Context, personID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`
	WHERE person_id = ? AND exit_at_ms IS NULL
	ORDER BY entry_at_ms DESC
	LIMIT 1`,
		personID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec Record, day DayWindow) error {
	nowMs := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO attendance_records (
		record_id, person_id, display_name, entry_day, entry_at_ms, exit_at_ms, open_marker,
		verification_method, confidence_score, station_id, created_at_ms, updated_at_ms
	) VALUES (?, ?, ?, ?, ?, NULL, 1, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.PersonID, rec.DisplayName, day.Key(), rec.EntryAt.UnixMilli(),
		rec.VerificationMethod, floatOrNil(rec.ConfidenceScore), rec.StationID, nowMs, nowMs,
	)
	if err != nil {
		// uq_attendance_open 違反 = 同じ人の同日 open を他のリクエストが先に作った
		if db.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %w", errConcurrentCreationLost, err)
		}
		return err
	}
	return nil
}

func (s *SQLStore) Close(ctx context.Context, recordID string, exitAt time.Time) (Record, error) {
	exitMs := exitAt.UnixMilli()
	res, err := s.db.ExecContext(ctx, `
	UPDATE attendance_records
	SET exit_at_ms = ?, open_marker = NULL, updated_at_ms = ?
	WHERE record_id = ? AND exit_at_ms IS NULL AND entry_at_ms <= ?`,
		exitMs, s.now().UnixMilli(), recordID, exitMs,
	)
	if err != nil {
		return Record{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if aff == 0 {
		return Record{}, errAlreadyClosed
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE record_id = ?`, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrInternal("closed but not found")
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLStore) ListBetween(ctx context.Context, from, to time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+`
	WHERE entry_at_ms >= ? AND entry_at_ms < ?
	ORDER BY entry_at_ms DESC, record_id DESC`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *SQLStore) ListByPerson(ctx context.Context, personID string, limit int) ([]Record, error) {
	q := selectRecord + `
	WHERE person_id = ?
	ORDER BY entry_at_ms DESC, record_id DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, personID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *SQLStore) DeleteByPerson(ctx context.Context, personID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE person_id = ?`, personID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== helpers =====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r recordRow
	if err := row.Scan(
		&r.RecordID, &r.PersonID, &r.DisplayName, &r.EntryAtMs, &r.ExitAtMs,
		&r.VerificationMethod, &r.ConfidenceScore, &r.StationID,
	); err != nil {
		return Record{}, err
	}
	return r.toModel(), nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

package people

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"smartid-backend/internal/platform/db"
)

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store { return &Store{db: conn} }

const selectPerson = `
	SELECT person_id, enrollment_code, display_name, photo_ref, phone, created_at_ms, updated_at_ms
	FROM people`

var errDuplicateCode = errors.New("enrollment code already registered")

func (s *Store) Insert(ctx context.Context, p Person) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO people (person_id, enrollment_code, display_name, photo_ref, phone, created_at_ms, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PersonID, p.EnrollmentCode, p.DisplayName, p.PhotoRef, p.Phone,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if db.IsDuplicateKey(err) {
		return errDuplicateCode
	}
	return err
}

func (s *Store) GetByID(ctx context.Context, personID string) (Person, error) {
	return s.getOne(ctx, selectPerson+` WHERE person_id = ?`, personID)
}

func (s *Store) GetByCode(ctx context.Context, code string) (Person, error) {
	return s.getOne(ctx, selectPerson+` WHERE enrollment_code = ?`, code)
}

func (s *Store) getOne(ctx context.Context, q string, arg any) (Person, error) {
	var r personRow
	err := s.db.QueryRowContext(ctx, q, arg).Scan(
		&r.PersonID, &r.EnrollmentCode, &r.DisplayName, &r.PhotoRef, &r.Phone, &r.CreatedAtMs, &r.UpdatedAtMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, NewNotFoundError("person not found")
	}
	if err != nil {
		return Person{}, err
	}
	return r.toModel(), nil
}

// List: 動的 WHERE + ORDER + LIMIT/OFFSET。total は条件一致の総件数
func (s *Store) List(ctx context.Context, q ListQuery) ([]Person, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)
	if q.EnrollmentCode != "" {
		wheres = append(wheres, "enrollment_code = ?")
		args = append(args, q.EnrollmentCode)
	}
	if q.Phone != "" {
		wheres = append(wheres, "phone = ?")
		args = append(args, q.Phone)
	}
	where := ""
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}

	buf.WriteString(selectPerson)
	buf.WriteString(where)
	buf.WriteString(" ORDER BY created_at_ms DESC, person_id DESC")
	buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset))

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Person{}
	for rows.Next() {
		var r personRow
		if err := rows.Scan(&r.PersonID, &r.EnrollmentCode, &r.DisplayName, &r.PhotoRef, &r.Phone, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
			return nil, 0, err
		}
		out = append(out, r.toModel())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM people"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Update(ctx context.Context, p Person) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	UPDATE people SET display_name = ?, photo_ref = ?, phone = ?, updated_at_ms = ?
	WHERE person_id = ?`,
		p.DisplayName, p.PhotoRef, p.Phone, p.UpdatedAt.UnixMilli(), p.PersonID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, personID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM people WHERE person_id = ?`, personID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

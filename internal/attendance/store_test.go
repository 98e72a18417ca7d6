package attendance

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartid-backend/internal/platform/db/dbtest"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s := NewSQLStore(dbtest.NewSQLite(t))
	s.now = func() time.Time { return at(1, 12, 0) }
	return s
}

func openRecord(id, person string, entry time.Time) Record {
	return Record{
		RecordID:           id,
		PersonID:           person,
		DisplayName:        "Asha",
		EntryAt:            entry.UTC(),
		VerificationMethod: DefaultMethod,
		ConfidenceScore:    f64(91.5),
		StationID:          DefaultStation,
	}
}

func TestSQLStore_OpenCloseLifecycle(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	day := LocalDayWindow(at(1, 9, 0), jst)

	got, err := s.FindOpen(ctx, "P1", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := openRecord("R1", "P1", at(1, 9, 0))
	require.NoError(t, s.Insert(ctx, rec, day))

	got, err = s.FindOpen(ctx, "P1", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// 同日 open は2つ作れない
	err = s.Insert(ctx, openRecord("R2", "P1", at(1, 9, 1)), day)
	assert.ErrorIs(t, err, errConcurrentCreationLost)

	// exit < entry の UPDATE は条件で弾かれる
	_, err = s.Close(ctx, "R1", at(1, 8, 0))
	assert.ErrorIs(t, err, errAlreadyClosed)

	closed, err := s.Close(ctx, "R1", at(1, 17, 0))
	require.NoError(t, err)
	require.NotNil(t, closed.ExitAt)
	assert.True(t, closed.ExitAt.Equal(at(1, 17, 0)))

	_, err = s.Close(ctx, "R1", at(1, 18, 0))
	assert.ErrorIs(t, err, errAlreadyClosed)

	got, err = s.FindOpen(ctx, "P1", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 閉じた後は同日でも新しい open を作れる
	require.NoError(t, s.Insert(ctx, openRecord("R3", "P1", at(1, 18, 0)), day))
}

func TestSQLStore_Lists(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	for _, r := range []Record{
		openRecord("R1", "P1", at(1, 9, 0)),
		openRecord("R2", "P2", at(1, 10, 0)),
		openRecord("R3", "P1", at(2, 9, 0)),
		openRecord("R4", "P1", at(3, 0, 0)),
	} {
		require.NoError(t, s.Insert(ctx, r, LocalDayWindow(r.EntryAt, jst)))
	}

	day := LocalDayWindow(at(1, 0, 0), jst)
	recs, err := s.ListBetween(ctx, day.Start, day.End)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "R2", recs[0].RecordID)
	assert.Equal(t, "R1", recs[1].RecordID)

	recs, err = s.ListByPerson(ctx, "P1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"R4", "R3", "R1"}, recordIDs(recs))

	recs, err = s.ListByPerson(ctx, "P1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"R4"}, recordIDs(recs))

	recs, err = s.ListByPerson(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	n, err := s.DeleteByPerson(ctx, "P1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	recs, err = s.ListBetween(ctx, at(1, 0, 0), at(4, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"R2"}, recordIDs(recs))
}

func TestService_OverSQLite(t *testing.T) {
	s := newTestService(t, newSQLStore(t), at(2, 12, 0))
	ctx := context.Background()

	_, out := scan(t, s, "P1", at(1, 9, 0))
	assert.Equal(t, OutcomeEntry, out)
	closed, out := scan(t, s, "P1", at(1, 17, 30))
	assert.Equal(t, OutcomeExit, out)

	day, _ := s.Day("2024-06-01")
	recs, err := s.ListForDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, closed, recs[0])

	_, out = scan(t, s, "P1", at(2, 8, 0))
	assert.Equal(t, OutcomeEntry, out)
}

func TestSQLStore_LatestOpenAcrossDays(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	got, err := s.LatestOpen(ctx, "P1")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, r := range []Record{
		openRecord("R1", "P1", at(1, 9, 0)),
		openRecord("R2", "P1", at(2, 9, 0)),
		openRecord("R3", "P2", at(3, 9, 0)),
	} {
		require.NoError(t, s.Insert(ctx, r, LocalDayWindow(r.EntryAt, jst)))
	}

	got, err = s.LatestOpen(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.RecordID)

	// 閉じたものは対象外
	_, err = s.Close(ctx, "R2", at(2, 17, 0))
	require.NoError(t, err)
	got, err = s.LatestOpen(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R1", got.RecordID)
}

func TestService_OverSQLite_BackdatedScanBeforeOpenEntryRejected(t *testing.T) {
	s := newTestService(t, newSQLStore(t), at(2, 12, 0))
	ctx := context.Background()

	_, out := scan(t, s, "P1", at(2, 9, 0))
	assert.Equal(t, OutcomeEntry, out)

	// 前日の時刻でも、今日の未退出レコードより前なら入場を作らない
	_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha", OccurredAt: at(1, 20, 0)})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	assert.Equal(t, 400, toHTTPStatus(err))

	recs, err := s.ListForPerson(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsOpen())
}

func TestService_OverSQLite_ConcurrentScansYieldOneEntryOneExit(t *testing.T) {
	for i := 0; i < 20; i++ {
		store := newSQLStore(t)
		s := newTestService(t, store, at(1, 9, 0))

		var (
			wg       sync.WaitGroup
			start    = make(chan struct{})
			outcomes = make([]Outcome, 2)
			errs     = make([]error, 2)
		)
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				_, outcomes[g], errs[g] = s.RecordScan(context.Background(), ScanInput{PersonID: "P1", DisplayName: "Asha"})
			}(g)
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.ElementsMatch(t, []Outcome{OutcomeEntry, OutcomeExit}, outcomes)

		// uq_attendance_open により行は1つだけ。退出済みなので open_marker は NULL
		var total, open int
		require.NoError(t, store.db.QueryRowContext(context.Background(),
			`SELECT COUNT(*), COUNT(open_marker) FROM attendance_records WHERE person_id = ?`, "P1",
		).Scan(&total, &open))
		assert.Equal(t, 1, total)
		assert.Equal(t, 0, open)
	}
}

var recordCols = []string{
	"record_id", "person_id", "display_name", "entry_at_ms", "exit_at_ms",
	"verification_method", "confidence_score", "station_id",
}

func TestService_MySQLDuplicateKeyRetriesAsExit(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := newTestService(t, NewSQLStore(conn), at(1, 9, 0))
	entryMs := at(1, 8, 59).UnixMilli()
	exitMs := at(1, 9, 0).UnixMilli()

	// 最新の未退出 → 当日の未退出
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WithArgs("P1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("W1", "P1", "Asha", entryMs, nil, DefaultMethod, nil, DefaultStation))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records")).
		WithArgs(exitMs, sqlmock.AnyArg(), "W1", exitMs).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE record_id = ?")).
		WithArgs("W1").
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("W1", "P1", "Asha", entryMs, exitMs, DefaultMethod, nil, DefaultStation))

	rec, out, err := s.RecordScan(context.Background(), ScanInput{PersonID: "P1", DisplayName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExit, out)
	assert.Equal(t, "W1", rec.RecordID)
	require.NotNil(t, rec.ExitAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_MySQLInvalidConnIsUnavailable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := newTestService(t, NewSQLStore(conn), at(1, 9, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).WillReturnError(mysql.ErrInvalidConn)

	_, _, err = s.RecordScan(context.Background(), ScanInput{PersonID: "P1", DisplayName: "Asha"})
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.Equal(t, 503, toHTTPStatus(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func recordIDs(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.RecordID)
	}
	return out
}

package attendance

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) New() (string, error) {
	return fmt.Sprintf("R%04d", g.n.Add(1)), nil
}

func newTestService(t *testing.T, store Store, now time.Time) *Service {
	t.Helper()
	s := NewService(store, Options{Location: jst})
	s.clock = fixedClock{t: now}
	s.id = &seqIDs{}
	return s
}

func at(day, hh, mm int) time.Time {
	return time.Date(2024, 6, day, hh, mm, 0, 0, jst)
}

func f64(v float64) *float64 { return &v }

func scan(t *testing.T, s *Service, person string, when time.Time) (Record, Outcome) {
	t.Helper()
	rec, out, err := s.RecordScan(context.Background(), ScanInput{
		PersonID:    person,
		DisplayName: "Asha",
		OccurredAt:  when,
	})
	require.NoError(t, err)
	return rec, out
}

func TestRecordScan_ExampleScenario(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(2, 12, 0))
	ctx := context.Background()

	rec, out, err := s.RecordScan(ctx, ScanInput{
		PersonID: "P1", DisplayName: "Asha", VerificationMethod: "code+face",
		ConfidenceScore: f64(92), OccurredAt: at(1, 9, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntry, out)
	assert.True(t, rec.EntryAt.Equal(at(1, 9, 0)))
	assert.Nil(t, rec.ExitAt)

	rec, out, err = s.RecordScan(ctx, ScanInput{
		PersonID: "P1", DisplayName: "Asha", VerificationMethod: "code+face",
		ConfidenceScore: f64(88), OccurredAt: at(1, 17, 30),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExit, out)
	assert.True(t, rec.EntryAt.Equal(at(1, 9, 0)))
	require.NotNil(t, rec.ExitAt)
	assert.True(t, rec.ExitAt.Equal(at(1, 17, 30)))
	// 退出時のスコアで入場時の値は上書きしない
	assert.Equal(t, 92.0, *rec.ConfidenceScore)

	day, err := s.Day("2024-06-01")
	require.NoError(t, err)
	recs, err := s.ListForDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	if diff := cmp.Diff(rec, recs[0]); diff != "" {
		t.Errorf("listed record mismatch (-want +got):\n%s", diff)
	}

	next, out := scan(t, s, "P1", at(2, 8, 0))
	assert.Equal(t, OutcomeEntry, out)
	assert.True(t, next.EntryAt.Equal(at(2, 8, 0)))
	assert.NotEqual(t, rec.RecordID, next.RecordID)
}

func TestRecordScan_EntryThenExit(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(1, 23, 59))

	_, out := scan(t, s, "P1", at(1, 0, 0))
	assert.Equal(t, OutcomeEntry, out)
	// 間隔に関係なく同日2回目は退出
	_, out = scan(t, s, "P1", at(1, 23, 59))
	assert.Equal(t, OutcomeExit, out)
}

func TestRecordScan_ThirdScanOpensNewRecord(t *testing.T) {
	store := NewMemoryStore()
	s := newTestService(t, store, at(1, 18, 0))
	ctx := context.Background()

	first, _ := scan(t, s, "P1", at(1, 9, 0))
	_, out := scan(t, s, "P1", at(1, 12, 0))
	assert.Equal(t, OutcomeExit, out)
	third, out := scan(t, s, "P1", at(1, 13, 0))
	assert.Equal(t, OutcomeEntry, out)
	_, out = scan(t, s, "P1", at(1, 17, 0))
	assert.Equal(t, OutcomeExit, out)

	recs, err := s.ListForPerson(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, third.RecordID, recs[0].RecordID)
	assert.Equal(t, first.RecordID, recs[1].RecordID)
	for _, r := range recs {
		assert.False(t, r.IsOpen())
	}
}

func TestRecordScan_DayReset(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(2, 9, 0))
	ctx := context.Background()

	yesterday, _ := scan(t, s, "P1", at(1, 22, 0))

	// 前日の open は閉じずに、今日の入場を作る
	today, out := scan(t, s, "P1", at(2, 8, 0))
	assert.Equal(t, OutcomeEntry, out)
	assert.NotEqual(t, yesterday.RecordID, today.RecordID)

	day1, _ := s.Day("2024-06-01")
	recs, err := s.ListForDay(ctx, day1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsOpen())
}

func TestListForDay_WindowBounds(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(3, 12, 0))
	ctx := context.Background()

	scan(t, s, "A", at(1, 23, 59))
	scan(t, s, "B", at(2, 0, 0))
	scan(t, s, "C", at(2, 12, 0))
	scan(t, s, "D", at(2, 23, 59))
	scan(t, s, "E", at(3, 0, 0))

	day, _ := s.Day("2024-06-02")
	recs, err := s.ListForDay(ctx, day)
	require.NoError(t, err)

	var got []string
	for _, r := range recs {
		got = append(got, r.PersonID)
	}
	assert.Equal(t, []string{"D", "C", "B"}, got)
}

func TestListForPerson(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(3, 12, 0))
	ctx := context.Background()

	scan(t, s, "P1", at(1, 9, 0))
	scan(t, s, "P2", at(1, 9, 5))
	scan(t, s, "P1", at(2, 9, 0))
	scan(t, s, "P1", at(3, 9, 0))

	recs, err := s.ListForPerson(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].EntryAt.Equal(at(3, 9, 0)))
	assert.True(t, recs[2].EntryAt.Equal(at(1, 9, 0)))

	recs, err = s.ListForPerson(ctx, "P1", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = s.ListForPerson(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.ListForPerson(ctx, " ", 0)
	assert.Equal(t, 400, toHTTPStatus(err))
	_, err = s.ListForPerson(ctx, "P1", -1)
	assert.Equal(t, 400, toHTTPStatus(err))
	_, err = s.ListForPerson(ctx, "P1", MaxPageLimit+1)
	assert.Equal(t, 400, toHTTPStatus(err))
	recs, err = s.ListForPerson(ctx, "P1", MaxPageLimit)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRecordScan_ExitBeforeEntryRejected(t *testing.T) {
	store := NewMemoryStore()
	s := newTestService(t, store, at(1, 18, 0))
	ctx := context.Background()

	entry, _ := scan(t, s, "P1", at(1, 10, 0))

	_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha", OccurredAt: at(1, 9, 0)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	assert.Equal(t, 400, toHTTPStatus(err))

	recs, err := s.ListForPerson(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, entry, recs[0])
}

func TestRecordScan_BackdatedBeforeOpenEntryOnAnotherDay(t *testing.T) {
	store := NewMemoryStore()
	s := newTestService(t, store, at(2, 12, 0))
	ctx := context.Background()

	today, out := scan(t, s, "P1", at(2, 9, 0))
	assert.Equal(t, OutcomeEntry, out)

	_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha", OccurredAt: at(1, 20, 0)})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	recs, err := s.ListForPerson(ctx, "P1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, today, recs[0])

	// 前日の open が残っていても、それより後の時刻なら当日の判定どおり
	_, out = scan(t, s, "P2", at(1, 20, 0))
	assert.Equal(t, OutcomeEntry, out)
	_, out = scan(t, s, "P2", at(2, 8, 0))
	assert.Equal(t, OutcomeEntry, out)
}

func TestRecordScan_FutureTimestampRejected(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(1, 9, 0))

	_, _, err := s.RecordScan(context.Background(), ScanInput{
		PersonID: "P1", DisplayName: "Asha", OccurredAt: at(1, 9, 0).Add(DefaultClockSkew + time.Second),
	})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	// skew 内なら受け付ける
	_, out, err := s.RecordScan(context.Background(), ScanInput{
		PersonID: "P1", DisplayName: "Asha", OccurredAt: at(1, 9, 0).Add(DefaultClockSkew),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntry, out)
}

func TestRecordScan_DefaultsAndTruncation(t *testing.T) {
	now := at(1, 9, 0).Add(1234567 * time.Nanosecond)
	s := newTestService(t, NewMemoryStore(), now)

	rec, out, err := s.RecordScan(context.Background(), ScanInput{PersonID: " P1 ", DisplayName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEntry, out)
	assert.Equal(t, "P1", rec.PersonID)
	assert.Equal(t, DefaultMethod, rec.VerificationMethod)
	assert.Equal(t, DefaultStation, rec.StationID)
	assert.Nil(t, rec.ConfidenceScore)
	assert.True(t, rec.EntryAt.Equal(at(1, 9, 0).Add(time.Millisecond)))
}

func TestRecordScan_Validation(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(1, 9, 0))

	tests := []struct {
		name string
		in   ScanInput
	}{
		{"missing person", ScanInput{DisplayName: "Asha"}},
		{"missing name", ScanInput{PersonID: "P1"}},
		{"score below range", ScanInput{PersonID: "P1", DisplayName: "Asha", ConfidenceScore: f64(-1)}},
		{"score above range", ScanInput{PersonID: "P1", DisplayName: "Asha", ConfidenceScore: f64(100.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.RecordScan(context.Background(), tt.in)
			var api *APIError
			require.ErrorAs(t, err, &api)
			assert.Equal(t, CodeInvalidArgument, api.Code)
		})
	}
}

func TestRecordScan_ConcurrentScansYieldOneEntryOneExit(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := newTestService(t, NewMemoryStore(), at(1, 9, 0))

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
	}
}

// racingStore: FindOpen と Insert の間に他のリクエストが割り込んだ状態を再現する
type racingStore struct {
	*MemoryStore
	winner   Record
	losses   int // 何回 Insert を負けさせるか
	inserts  int
	closes   int
	failWith error
}

func (r *racingStore) Insert(ctx context.Context, rec Record, day DayWindow) error {
	r.inserts++
	if r.inserts <= r.losses {
		w := r.winner
		w.RecordID = fmt.Sprintf("W%d", r.inserts)
		if err := r.MemoryStore.Insert(ctx, w, day); err != nil {
			return err
		}
		if r.losses > 1 {
			// 次の試行でも負けるように、勝者をすぐ閉じておく
			if _, err := r.MemoryStore.Close(ctx, w.RecordID, w.EntryAt); err != nil {
				return err
			}
		}
		return errConcurrentCreationLost
	}
	return r.MemoryStore.Insert(ctx, rec, day)
}

func (r *racingStore) Close(ctx context.Context, id string, exitAt time.Time) (Record, error) {
	r.closes++
	if r.failWith != nil {
		return Record{}, r.failWith
	}
	return r.MemoryStore.Close(ctx, id, exitAt)
}

func TestRecordScan_LostCreationRetriesAsExit(t *testing.T) {
	store := &racingStore{
		MemoryStore: NewMemoryStore(),
		winner:      Record{PersonID: "P1", DisplayName: "Asha", EntryAt: at(1, 9, 0)},
		losses:      1,
	}
	s := newTestService(t, store, at(1, 9, 0))

	rec, out, err := s.RecordScan(context.Background(), ScanInput{PersonID: "P1", DisplayName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExit, out)
	assert.Equal(t, "W1", rec.RecordID)
	assert.Equal(t, 1, store.closes)
}

func TestRecordScan_SecondLossIsConflict(t *testing.T) {
	store := &racingStore{
		MemoryStore: NewMemoryStore(),
		winner:      Record{PersonID: "P1", DisplayName: "Asha", EntryAt: at(1, 8, 0)},
		losses:      2,
	}
	s := newTestService(t, store, at(1, 9, 0))

	_, _, err := s.RecordScan(context.Background(), ScanInput{PersonID: "P1", DisplayName: "Asha"})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
	assert.Equal(t, 409, toHTTPStatus(err))
	assert.Equal(t, 2, store.inserts)
}

func TestRecordScan_LostCloseRetries(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore(), failWith: errAlreadyClosed}
	s := newTestService(t, store, at(1, 12, 0))
	ctx := context.Background()

	require.NoError(t, store.MemoryStore.Insert(ctx, Record{
		RecordID: "R-open", PersonID: "P1", DisplayName: "Asha", EntryAt: at(1, 9, 0),
	}, LocalDayWindow(at(1, 9, 0), jst)))

	_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha"})
	assert.Equal(t, 409, toHTTPStatus(err))
	assert.Equal(t, maxAttempts, store.closes)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) FindOpen(context.Context, string, DayWindow) (*Record, error) {
	return nil, f.err
}

func (f failingStore) ListBetween(context.Context, time.Time, time.Time) ([]Record, error) {
	return nil, f.err
}

func (f failingStore) DeleteByPerson(context.Context, string) (int64, error) {
	return 0, f.err
}

func TestService_StorageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable maps to unavailable", func(t *testing.T) {
		s := newTestService(t, failingStore{NewMemoryStore(), driver.ErrBadConn}, at(1, 9, 0))

		_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha"})
		assert.ErrorIs(t, err, ErrPersistenceUnavailable)
		assert.ErrorIs(t, err, driver.ErrBadConn)
		assert.Equal(t, 503, toHTTPStatus(err))

		_, err = s.ListForDay(ctx, LocalDayWindow(at(1, 9, 0), jst))
		assert.ErrorIs(t, err, ErrPersistenceUnavailable)

		_, err = s.DeleteAllForPerson(ctx, "P1")
		assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	})

	t.Run("other errors are internal", func(t *testing.T) {
		s := newTestService(t, failingStore{NewMemoryStore(), errors.New("syntax error")}, at(1, 9, 0))

		_, _, err := s.RecordScan(ctx, ScanInput{PersonID: "P1", DisplayName: "Asha"})
		assert.NotErrorIs(t, err, ErrPersistenceUnavailable)
		assert.Equal(t, 500, toHTTPStatus(err))
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		s := newTestService(t, NewMemoryStore(), at(1, 9, 0))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := s.RecordScan(cctx, ScanInput{PersonID: "P1", DisplayName: "Asha"})
		assert.ErrorIs(t, err, context.Canceled)

		recs, err := s.ListForPerson(ctx, "P1", 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestDeleteAllForPerson(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(2, 12, 0))
	ctx := context.Background()

	scan(t, s, "P1", at(1, 9, 0))
	scan(t, s, "P1", at(2, 9, 0))
	scan(t, s, "P2", at(2, 9, 0))

	n, err := s.DeleteAllForPerson(ctx, "P1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.DeleteAllForPerson(ctx, "P1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// 削除後は当日の open も消えているので次は入場
	_, out := scan(t, s, "P1", at(2, 10, 0))
	assert.Equal(t, OutcomeEntry, out)

	recs, err := s.ListForPerson(ctx, "P2", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDayStats(t *testing.T) {
	s := newTestService(t, NewMemoryStore(), at(1, 18, 0))
	ctx := context.Background()

	scan(t, s, "P1", at(1, 9, 0))
	scan(t, s, "P1", at(1, 12, 0))
	scan(t, s, "P1", at(1, 13, 0))
	scan(t, s, "P2", at(1, 9, 30))

	day, _ := s.Day("today")
	st, err := s.DayStats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, DayStats{Date: "2024-06-01", Entries: 3, Exits: 1, Inside: 2, UniquePeople: 2}, st)
}

func TestULIDGen_Monotonic(t *testing.T) {
	var g ulidGen
	prev := ""
	for i := 0; i < 200; i++ {
		id, err := g.New()
		require.NoError(t, err)
		require.Len(t, id, 26)
		// 同一ミリ秒内でも単調増加
		require.Greater(t, id, prev)
		prev = id
	}
}

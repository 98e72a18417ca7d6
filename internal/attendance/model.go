package attendance

import (
	"database/sql"
	"time"
)

type Outcome string

const (
	OutcomeEntry Outcome = "entry"
	OutcomeExit  Outcome = "exit"
)

// Record: 入退場レコード。ExitAt が nil の間は「構内にいる」
type Record struct {
	RecordID           string
	PersonID           string
	DisplayName        string
	EntryAt            time.Time
	ExitAt             *time.Time
	VerificationMethod string
	ConfidenceScore    *float64
	StationID          string
}

func (r Record) IsOpen() bool { return r.ExitAt == nil }

// ScanInput: RecordScan の入力。OccurredAt がゼロ値なら現在時刻
type ScanInput struct {
	PersonID           string
	DisplayName        string
	VerificationMethod string
	ConfidenceScore    *float64
	OccurredAt         time.Time
	StationID          string
}

// DayStats: 管理画面の「今日の入場数・退場数・在場数」
type DayStats struct {
	Date         string
	Entries      int // その日に作られたレコード数
	Exits        int // 退出済み
	Inside       int // 在場中（open）
	UniquePeople int
}

// DB行に対応（スキャン用）。時刻は UNIX ミリ秒で保存する
type recordRow struct {
	RecordID           string
	PersonID           string
	DisplayName        string
	EntryAtMs          int64
	ExitAtMs           sql.NullInt64
	VerificationMethod string
	ConfidenceScore    sql.NullFloat64
	StationID          string
}

func (r recordRow) toModel() Record {
	rec := Record{
		RecordID:           r.RecordID,
		PersonID:           r.PersonID,
		DisplayName:        r.DisplayName,
		EntryAt:            time.UnixMilli(r.EntryAtMs).UTC(),
		VerificationMethod: r.VerificationMethod,
		StationID:          r.StationID,
	}
	if r.ExitAtMs.Valid {
		t := time.UnixMilli(r.ExitAtMs.Int64).UTC()
		rec.ExitAt = &t
	}
	if r.ConfidenceScore.Valid {
		v := r.ConfidenceScore.Float64
		rec.ConfidenceScore = &v
	}
	return rec
}

// ToResponse: loc の現地時刻で表したレスポンス
func ToResponse(r Record, loc *time.Location) RecordResponse { return r.toDTO(loc) }

func (r Record) toDTO(loc *time.Location) RecordResponse {
	out := RecordResponse{
		RecordID:           r.RecordID,
		PersonID:           r.PersonID,
		DisplayName:        r.DisplayName,
		EntryTime:          r.EntryAt.In(loc),
		Status:             StatusInside,
		VerificationMethod: r.VerificationMethod,
		ConfidenceScore:    r.ConfidenceScore,
		StationID:          r.StationID,
	}
	if r.ExitAt != nil {
		t := r.ExitAt.In(loc)
		out.ExitTime = &t
		out.Status = StatusExited
	}
	return out
}

func (s DayStats) toDTO() DayStatsResponse {
	return DayStatsResponse{
		Date:         s.Date,
		Entries:      s.Entries,
		Exits:        s.Exits,
		Inside:       s.Inside,
		UniquePeople: s.UniquePeople,
	}
}

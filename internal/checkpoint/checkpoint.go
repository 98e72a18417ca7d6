package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"smartid-backend/internal/attendance"
	"smartid-backend/internal/people"
	"smartid-backend/internal/platform/logging"
)

const DefaultCodePattern = `^APP\d{8}$`

const (
	ReasonInvalidCode        = "invalid_code"
	ReasonUnknownPerson      = "unknown_person"
	ReasonVerificationFailed = "verification_failed"
)

type Directory interface {
	ResolveByCode(ctx context.Context, code string) (people.Person, error)
}

type Ledger interface {
	RecordScan(ctx context.Context, in attendance.ScanInput) (attendance.Record, attendance.Outcome, error)
}

// RejectedError: スキャンを台帳に届ける前に弾いた
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string { return e.Reason + ": " + e.Message }

type ScanRequest struct {
	Code       string
	Confidence *float64
	Method     string
	StationID  string
	OccurredAt time.Time
}

type ScanResult struct {
	Outcome attendance.Outcome
	Record  attendance.Record
	Person  people.Person
}

// Checkpoint: コード形式チェック → 人物解決 → 顔照合判定 → 台帳記録
type Checkpoint struct {
	pattern *regexp.Regexp
	dir     Directory
	gate    Gate
	ledger  Ledger
	log     logging.Logger
}

func New(pattern string, dir Directory, gate Gate, ledger Ledger, log logging.Logger) (*Checkpoint, error) {
	if pattern == "" {
		pattern = DefaultCodePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("checkpoint code pattern: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Checkpoint{pattern: re, dir: dir, gate: gate, ledger: ledger, log: log}, nil
}

func (cp *Checkpoint) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	code := people.NormalizeCode(req.Code)
	log := cp.log.With("code", code, "station_id", req.StationID)

	if !cp.pattern.MatchString(code) {
		log.Warn(ctx, "scan rejected", "reason", ReasonInvalidCode)
		return ScanResult{}, &RejectedError{Reason: ReasonInvalidCode, Message: "code does not match " + cp.pattern.String()}
	}

	p, err := cp.dir.ResolveByCode(ctx, code)
	if errors.Is(err, people.ErrNotFound) {
		log.Warn(ctx, "scan rejected", "reason", ReasonUnknownPerson)
		return ScanResult{}, &RejectedError{Reason: ReasonUnknownPerson, Message: "no person registered for this code"}
	}
	if err != nil {
		return ScanResult{}, err
	}

	v, err := cp.gate.Evaluate(ctx, Frame{PersonID: p.PersonID, Method: req.Method, Confidence: req.Confidence})
	if err != nil {
		return ScanResult{}, err
	}
	if !v.Pass {
		log.Warn(ctx, "scan rejected", "reason", ReasonVerificationFailed, "detail", v.Reason)
		return ScanResult{}, &RejectedError{Reason: ReasonVerificationFailed, Message: v.Reason}
	}

	rec, outcome, err := cp.ledger.RecordScan(ctx, attendance.ScanInput{
		PersonID:           p.PersonID,
		DisplayName:        p.DisplayName,
		VerificationMethod: strings.TrimSpace(req.Method),
		ConfidenceScore:    v.Confidence,
		OccurredAt:         req.OccurredAt,
		StationID:          req.StationID,
	})
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Outcome: outcome, Record: rec, Person: p}, nil
}

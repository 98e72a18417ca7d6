package attendance

import (
	"strings"
	"time"
)

const (
	StatusInside = "inside"
	StatusExited = "exited"

	MaxPageLimit = 200
)

// RecordScanRequest: POST /attendance/scans
// student_id / student_name / face_match_score は旧フロントの名前。正規名が優先
type RecordScanRequest struct {
	PersonID           string     `json:"person_id"`
	DisplayName        string     `json:"display_name"`
	VerificationMethod string     `json:"verification_method"`
	ConfidenceScore    *float64   `json:"confidence_score,omitempty"`
	OccurredAt         *time.Time `json:"occurred_at,omitempty"` // RFC3339
	StationID          string     `json:"station_id,omitempty"`

	StudentID      string   `json:"student_id,omitempty"`
	StudentName    string   `json:"student_name,omitempty"`
	FaceMatchScore *float64 `json:"face_match_score,omitempty"`
}

func (r RecordScanRequest) toInput() ScanInput {
	in := ScanInput{
		PersonID:           firstNonEmpty(r.PersonID, r.StudentID),
		DisplayName:        firstNonEmpty(r.DisplayName, r.StudentName),
		VerificationMethod: r.VerificationMethod,
		ConfidenceScore:    r.ConfidenceScore,
		StationID:          r.StationID,
	}
	if in.ConfidenceScore == nil {
		in.ConfidenceScore = r.FaceMatchScore
	}
	if r.OccurredAt != nil {
		in.OccurredAt = *r.OccurredAt
	}
	return in
}

type RecordResponse struct {
	RecordID           string     `json:"record_id"`
	PersonID           string     `json:"person_id"`
	DisplayName        string     `json:"display_name"`
	EntryTime          time.Time  `json:"entry_time"`
	ExitTime           *time.Time `json:"exit_time"` // 在場中は null
	Status             string     `json:"status"`    // inside | exited
	VerificationMethod string     `json:"verification_method"`
	ConfidenceScore    *float64   `json:"confidence_score"`
	StationID          string     `json:"station_id,omitempty"`
}

type ScanResponse struct {
	Outcome Outcome `json:"outcome"`
	RecordResponse
}

type DayListResponse struct {
	Date  string           `json:"date"`
	Count int              `json:"count"`
	Items []RecordResponse `json:"items"`
}

type PersonHistoryResponse struct {
	PersonID string           `json:"person_id"`
	Count    int              `json:"count"`
	Items    []RecordResponse `json:"items"`
}

type DeleteResponse struct {
	PersonID     string `json:"person_id"`
	DeletedCount int64  `json:"deleted_count"`
}

type DayStatsResponse struct {
	Date         string `json:"date"`
	Entries      int    `json:"entries"`
	Exits        int    `json:"exits"`
	Inside       int    `json:"inside"`
	UniquePeople int    `json:"unique_people"`
}

func toDTOs(recs []Record, loc *time.Location) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for i := 0; i < len(recs); i++ {
		out = append(out, recs[i].toDTO(loc))
	}
	return out
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package checkpoint

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartid-backend/internal/attendance"
	"smartid-backend/internal/people"
)

// ScanRequestDTO: POST /checkpoint/scans
// student_id / face_match_score はキオスク旧版の名前
type ScanRequestDTO struct {
	EnrollmentCode     string     `json:"enrollment_code"`
	ConfidenceScore    *float64   `json:"confidence_score,omitempty"`
	VerificationMethod string     `json:"verification_method,omitempty"`
	StationID          string     `json:"station_id,omitempty"`
	OccurredAt         *time.Time `json:"occurred_at,omitempty"`

	StudentID      string   `json:"student_id,omitempty"`
	FaceMatchScore *float64 `json:"face_match_score,omitempty"`
}

func (d ScanRequestDTO) toRequest() ScanRequest {
	req := ScanRequest{
		Code:       d.EnrollmentCode,
		Confidence: d.ConfidenceScore,
		Method:     d.VerificationMethod,
		StationID:  d.StationID,
	}
	if req.Code == "" {
		req.Code = d.StudentID
	}
	if req.Confidence == nil {
		req.Confidence = d.FaceMatchScore
	}
	if d.OccurredAt != nil {
		req.OccurredAt = *d.OccurredAt
	}
	return req
}

type ScanResponseDTO struct {
	Outcome        attendance.Outcome `json:"outcome"`
	EnrollmentCode string             `json:"enrollment_code"`
	PhotoRef       string             `json:"photo_ref"`
	attendance.RecordResponse
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

type Handler struct {
	cp  *Checkpoint
	loc *time.Location
}

func RegisterRoutes(r gin.IRoutes, cp *Checkpoint, loc *time.Location) {
	h := &Handler{cp: cp, loc: loc}
	// POST /checkpoint/scans
	r.POST("/checkpoint/scans", h.Scan)
}

func (h *Handler) Scan(c *gin.Context) {
	var dto ScanRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, newError("INVALID_ARGUMENT", "", "invalid json"))
		return
	}

	res, err := h.cp.Scan(c.Request.Context(), dto.toRequest())
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	status := http.StatusOK
	if res.Outcome == attendance.OutcomeEntry {
		status = http.StatusCreated
	}
	c.JSON(status, ScanResponseDTO{
		Outcome:        res.Outcome,
		EnrollmentCode: res.Person.EnrollmentCode,
		PhotoRef:       res.Person.PhotoRef,
		RecordResponse: attendance.ToResponse(res.Record, h.loc),
	})
}

func newError(code, reason, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Reason = reason
	e.Error.Message = msg
	return e
}

func errorResponse(err error) (int, errorDTO) {
	var (
		rej *RejectedError
		api *attendance.APIError
		de  *people.DomainError
	)
	switch {
	case errors.As(err, &rej):
		switch rej.Reason {
		case ReasonInvalidCode:
			return http.StatusBadRequest, newError("INVALID_ARGUMENT", rej.Reason, rej.Message)
		case ReasonUnknownPerson:
			return http.StatusNotFound, newError("NOT_FOUND", rej.Reason, rej.Message)
		default:
			return http.StatusForbidden, newError("REJECTED", rej.Reason, rej.Message)
		}
	case errors.As(err, &api):
		return attendance.HTTPStatus(err), newError(string(api.Code), "", api.Message)
	case errors.As(err, &de):
		return people.ToHTTPStatus(err), newError(de.Code, "", de.Message)
	}
	return http.StatusInternalServerError, newError("INTERNAL", "", err.Error())
}

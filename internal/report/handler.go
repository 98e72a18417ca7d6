package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartid-backend/internal/attendance"
)

// DayLister: *attendance.Service が満たす
type DayLister interface {
	Day(v string) (attendance.DayWindow, error)
	ListForDay(ctx context.Context, day attendance.DayWindow) ([]attendance.Record, error)
	Location() *time.Location
}

type Handler struct{ ledger DayLister }

func RegisterRoutes(admin gin.IRoutes, ledger DayLister) {
	h := &Handler{ledger: ledger}
	// GET /attendance/export?on=YYYY-MM-DD&encoding=utf8|sjis
	admin.GET("/attendance/export", h.ExportDay)
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func (h *Handler) ExportDay(c *gin.Context) {
	enc, err := ParseEncoding(c.Query("encoding"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", err.Error()))
		return
	}
	day, err := h.ledger.Day(c.Query("on"))
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	recs, err := h.ledger.ListForDay(c.Request.Context(), day)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	// 途中で失敗したときに壊れた CSV を返さないよう、先にバッファへ書く
	var b bytes.Buffer
	if err := WriteCSV(&b, recs, h.ledger.Location(), enc); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "csv export failed"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.csv"`, day.Key()))
	c.Data(http.StatusOK, enc.ContentType(), b.Bytes())
}

func writeLedgerError(c *gin.Context, err error) {
	var api *attendance.APIError
	if errors.As(err, &api) {
		c.JSON(attendance.HTTPStatus(err), errorBody(string(api.Code), api.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
}

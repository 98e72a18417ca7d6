package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterRoutes: admin には認証済みグループを渡す（削除のみ）
func RegisterRoutes(r gin.IRoutes, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /attendance/scans（キオスクからのスキャン）
	r.POST("/attendance/scans", h.RecordScan)
	// GET /attendance?on=YYYY-MM-DD|today
	r.GET("/attendance", h.ListForDay)
	// GET /attendance/stats?on=
	r.GET("/attendance/stats", h.DayStats)
	// GET /people/:person_id/attendance?limit=
	r.GET("/people/:person_id/attendance", h.ListForPerson)

	// DELETE /people/:person_id/attendance
	admin.DELETE("/people/:person_id/attendance", h.DeleteAllForPerson)
}

// POST /attendance/scans
// 入場なら 201、退出なら 200
func (h *Handler) RecordScan(c *gin.Context) {
	var req RecordScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	rec, outcome, err := h.svc.RecordScan(c.Request.Context(), req.toInput())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}

	status := http.StatusOK
	if outcome == OutcomeEntry {
		status = http.StatusCreated
	}
	c.JSON(status, ScanResponse{Outcome: outcome, RecordResponse: rec.toDTO(h.svc.Location())})
}

// GET /attendance
func (h *Handler) ListForDay(c *gin.Context) {
	day, err := h.svc.Day(c.Query("on"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	recs, err := h.svc.ListForDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, DayListResponse{
		Date:  day.Key(),
		Count: len(recs),
		Items: toDTOs(recs, h.svc.Location()),
	})
}

// GET /attendance/stats
func (h *Handler) DayStats(c *gin.Context) {
	day, err := h.svc.Day(c.Query("on"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	st, err := h.svc.DayStats(c.Request.Context(), day)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, st.toDTO())
}

// GET /people/:person_id/attendance
func (h *Handler) ListForPerson(c *gin.Context) {
	personID := c.Param("person_id")
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "limit must be an integer"))
			return
		}
		limit = n
	}

	recs, err := h.svc.ListForPerson(c.Request.Context(), personID, limit)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, PersonHistoryResponse{
		PersonID: personID,
		Count:    len(recs),
		Items:    toDTOs(recs, h.svc.Location()),
	})
}

// DELETE /people/:person_id/attendance
func (h *Handler) DeleteAllForPerson(c *gin.Context) {
	personID := c.Param("person_id")
	n, err := h.svc.DeleteAllForPerson(c.Request.Context(), personID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{PersonID: personID, DeletedCount: n})
}

package people

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /people/:person_id（ポータルの本人表示）
	r.GET("/people/:person_id", h.Get)
	// POST /people/lookup（学籍番号 + 電話番号で本人確認）
	r.POST("/people/lookup", h.Lookup)

	// 管理者のみ
	admin.POST("/people", h.Register)
	admin.GET("/people", h.List)
	admin.PATCH("/people/:person_id", h.Update)
	admin.DELETE("/people/:person_id", h.Delete)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "enrollment_code and display_name are required"))
		return
	}
	p, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/people/"+p.PersonID)
	c.JSON(http.StatusCreated, p.toDTO())
}

func (h *Handler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "enrollment_code and phone are required"))
		return
	}
	p, err := h.svc.Lookup(c.Request.Context(), req.EnrollmentCode, req.Phone)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, p.toDTO())
}

func (h *Handler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("person_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, p.toDTO())
}

// GET /people?enrollment_code=&phone=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		EnrollmentCode: c.Query("enrollment_code"),
		Phone:          c.Query("phone"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Offset = n
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	out := ListResponse{Items: make([]PersonResponse, 0, len(items)), Total: total}
	for _, p := range items {
		out.Items = append(out.Items, p.toDTO())
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidArgument, "invalid json"))
		return
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("person_id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, p.toDTO())
}

func (h *Handler) Delete(c *gin.Context) {
	personID := c.Param("person_id")
	purged, err := h.svc.Delete(c.Request.Context(), personID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{PersonID: personID, PurgedRecordCount: purged})
}

package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc *Service }

// RegisterRoutes: ログインは公開、アカウント管理は admin グループ
func RegisterRoutes(public gin.IRoutes, admin gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	public.POST("/auth/login", h.Login)
	admin.POST("/auth/accounts", h.Register)
	admin.DELETE("/auth/accounts/:id", h.DeleteAccount)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"` // 未指定なら staff
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

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "id and password are required"))
		return
	}

	tok, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "IDまたはパスワードが間違っています"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "login failed"))
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "id and password are required"))
		return
	}
	role := req.Role
	if role == "" {
		role = RoleStaff
	}

	err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"id": req.ID, "role": role})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "role must be admin or staff and password at least 8 chars"))
	case errors.Is(err, ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorBody("CONFLICT", "ID already exists"))
	default:
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "register failed"))
	}
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if id == Subject(c) {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "cannot delete own account"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "account not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "delete failed"))
		return
	}
	c.Status(http.StatusNoContent)
}

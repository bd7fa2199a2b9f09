package permission

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/internal/handler"
	"github.com/safeflow/procedure-api/internal/middleware"
	"github.com/safeflow/procedure-api/internal/model"
	permissionService "github.com/safeflow/procedure-api/internal/service/permission"
)

type Handler struct {
	service *permissionService.Service
	catalog *permissionService.Catalog
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *permissionService.Service, catalog *permissionService.Catalog, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service: service,
		catalog: catalog,
		auth:    auth,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	permissions := r.Group("/permissions")
	{
		permissions.GET("", h.ListCatalog)
		permissions.GET("/effective", h.Effective)
		permissions.GET("/check/:code", h.Check)
	}

	users := r.Group("/users")
	users.Use(h.auth.RequirePermission(model.PermPermissionManage))
	{
		users.PUT("/:id/permissions/:code", h.SetOverride)
		users.DELETE("/:id/permissions/:code", h.ClearOverride)
	}
}

func (h *Handler) ListCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.catalog.All()))
}

func (h *Handler) Effective(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	codes, err := h.service.Effective(c.Request.Context(), claims.UserID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(codes))
}

func (h *Handler) Check(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	granted, err := h.service.Check(c.Request.Context(), claims.UserID, c.Param("code"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"granted": granted}))
}

type overrideRequest struct {
	IsGranted bool `json:"is_granted"`
}

func (h *Handler) SetOverride(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	claims := middleware.ClaimsFrom(c)
	if err := h.service.SetOverride(c.Request.Context(), claims.UserID, userID, c.Param("code"), req.IsGranted); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) ClearOverride(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	claims := middleware.ClaimsFrom(c)
	if err := h.service.ClearOverride(c.Request.Context(), claims.UserID, userID, c.Param("code")); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

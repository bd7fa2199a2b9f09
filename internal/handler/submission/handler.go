package submission

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/internal/handler"
	"github.com/safeflow/procedure-api/internal/middleware"
	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/service/workflow"
)

type Handler struct {
	engine *workflow.Engine
	router *workflow.Router
}

func NewHandler(engine *workflow.Engine, router *workflow.Router) *Handler {
	return &Handler{
		engine: engine,
		router: router,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	submissions := r.Group("/submissions")
	{
		submissions.POST("", h.Create)
		submissions.GET("", h.List)
		submissions.GET("/:id", h.Get)
		submissions.POST("/:id/approve", h.Approve)
		submissions.POST("/:id/reject", h.Reject)
		submissions.POST("/:id/recall", h.Recall)
		submissions.POST("/:id/read", h.MarkRead)
	}
}

type createRequest struct {
	Title              string                    `json:"title" binding:"required"`
	Body               string                    `json:"body"`
	DesignatedApprover *string                   `json:"designated_approver"`
	Recipients         []workflow.RecipientInput `json:"recipients" binding:"required,min=1"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	var approver *uuid.UUID
	if req.DesignatedApprover != nil {
		id, err := uuid.Parse(*req.DesignatedApprover)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid designated approver ID"))
			return
		}
		approver = &id
	}

	sub, err := h.engine.Create(c.Request.Context(), middleware.ClaimsFrom(c), workflow.CreateInput{
		Title:              req.Title,
		Body:               req.Body,
		DesignatedApprover: approver,
		Recipients:         req.Recipients,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(sub))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid submission ID"))
		return
	}

	view, err := h.engine.View(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) List(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	subs, err := h.engine.List(c.Request.Context(), middleware.ClaimsFrom(c), p)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(subs))
}

type approveRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid submission ID"))
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	sub, err := h.engine.Approve(c.Request.Context(), middleware.ClaimsFrom(c), id, req.Note)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sub))
}

type rejectRequest struct {
	Note string `json:"note" binding:"required"`
}

func (h *Handler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid submission ID"))
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("rejection note is required"))
		return
	}

	sub, err := h.engine.Reject(c.Request.Context(), middleware.ClaimsFrom(c), id, req.Note)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sub))
}

type recallRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) Recall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid submission ID"))
		return
	}

	var req recallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("recall reason is required"))
		return
	}

	sub, err := h.engine.Recall(c.Request.Context(), middleware.ClaimsFrom(c), id, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sub))
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid submission ID"))
		return
	}

	claims := middleware.ClaimsFrom(c)
	if err := h.router.MarkRead(c.Request.Context(), id, claims.UnitID, claims.UserID); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

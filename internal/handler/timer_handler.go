package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meggy/backend/internal/middleware"
	"meggy/backend/internal/service"
)

type TimerHandler struct {
	timerService *service.TimerService
}

type createTimerRequest struct {
	DurationSeconds int    `json:"durationSeconds"`
	Name            string `json:"name"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) Create(c *gin.Context) {
	var req createTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	userID := middleware.UserID(c)
	timer, apiErr := h.timerService.Create(c.Request.Context(), userID, req.DurationSeconds, req.Name)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"timer": timer})
}

func (h *TimerHandler) Get(c *gin.Context) {
	userID := middleware.UserID(c)
	timer, apiErr := h.timerService.Get(c.Request.Context(), userID, c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) ListActive(c *gin.Context) {
	userID := middleware.UserID(c)
	timers, apiErr := h.timerService.ListActive(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timers": timers})
}

func (h *TimerHandler) Pause(c *gin.Context) {
	userID := middleware.UserID(c)
	timer, apiErr := h.timerService.Pause(c.Request.Context(), userID, c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) Resume(c *gin.Context) {
	userID := middleware.UserID(c)
	timer, apiErr := h.timerService.Resume(c.Request.Context(), userID, c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) Cancel(c *gin.Context) {
	userID := middleware.UserID(c)
	timer, apiErr := h.timerService.Cancel(c.Request.Context(), userID, c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) CancelAll(c *gin.Context) {
	userID := middleware.UserID(c)
	count, apiErr := h.timerService.CancelAll(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": count})
}

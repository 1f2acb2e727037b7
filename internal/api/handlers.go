package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/biuroflow/scheduler/internal/cronexpr"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
	"github.com/biuroflow/scheduler/internal/scheduler"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	service SchedulerService
	health  HealthChecker
	log     logger.Logger
}

func NewHandler(service SchedulerService, health HealthChecker, log logger.Logger) *Handler {
	return &Handler{service: service, health: health, log: log}
}

func (h *Handler) registerJob(c *gin.Context) {
	var req scheduler.RegisterJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, err := h.service.RegisterJob(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) pauseJob(c *gin.Context) {
	if err := h.service.PauseJob(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (h *Handler) resumeJob(c *gin.Context) {
	if err := h.service.ResumeJob(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (h *Handler) nextFireTimes(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "5"))
	if err != nil || count <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
		return
	}

	instants, err := h.service.GetNextFireTimes(c.Request.Context(), c.Param("id"), count)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fire_times": instants})
}

func (h *Handler) executionHistory(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var filter repository.HistoryFilter
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseExecutionStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = &status
	}
	for param, dest := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := c.Query(param); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be RFC 3339"})
				return
			}
			*dest = &parsed
		}
	}

	result, err := h.service.GetExecutionHistory(c.Request.Context(), c.Param("id"), filter, page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) missedExecutions(c *gin.Context) {
	missed, err := h.service.CheckMissedExecutions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missed": missed})
}

type resolveMissedRequest struct {
	Instants []time.Time `json:"instants" binding:"required"`
	Strategy string      `json:"strategy" binding:"required"`
}

func (h *Handler) resolveMissed(c *gin.Context) {
	var req resolveMissedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	strategy, err := scheduler.ParseStrategy(req.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.ResolveMissedExecutions(c.Request.Context(), c.Param("id"), req.Instants, strategy); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "strategy": req.Strategy})
}

func (h *Handler) triggerNow(c *gin.Context) {
	if err := h.service.TriggerNow(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

func (h *Handler) stuckJobs(c *gin.Context) {
	threshold := scheduler.DefaultStuckThreshold
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a positive duration"})
			return
		}
		threshold = parsed
	}

	jobs, err := h.service.ListStuckJobs(c.Request.Context(), threshold)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) forceRelease(c *gin.Context) {
	if err := h.service.ForceReleaseJob(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateTrigger),
		errors.Is(err, repository.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cronexpr.ErrInvalidExpression),
		errors.Is(err, cronexpr.ErrUnknownTimezone),
		errors.Is(err, scheduler.ErrUnknownCalendar),
		errors.Is(err, scheduler.ErrUnknownStrategy):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

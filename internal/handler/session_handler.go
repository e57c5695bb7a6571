package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/horoquiz/horoquiz-backend/internal/middleware"
	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/repository"
	"github.com/horoquiz/horoquiz-backend/internal/response"
	"github.com/horoquiz/horoquiz-backend/internal/service"
	"github.com/horoquiz/horoquiz-backend/internal/validator"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Create godoc
// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	created, err := h.sessionService.Create(c.Request.Context(), claims.UserID, req.QuizID, model.GameMode(req.GameMode))
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusCreated, created)
}

// GetAll godoc
// GET /api/v1/sessions
func (h *SessionHandler) GetAll(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessions, err := h.sessionService.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetByID godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetByID(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// Results godoc
// GET /api/v1/sessions/:id/results
func (h *SessionHandler) Results(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.sessionService.Results(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, repository.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	case errors.Is(err, service.ErrQuizNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotPublished)
	case errors.Is(err, service.ErrInvalidGameMode):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidGameMode)
	case errors.Is(err, service.ErrSessionNotFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotFinished)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

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

type QuizHandler struct {
	quizService *service.QuizService
}

func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// GetAll godoc
// GET /api/v1/quizzes
func (h *QuizHandler) GetAll(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizzes, err := h.quizService.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	response.Success(c, http.StatusOK, gin.H{"quizzes": quizzes})
}

// GetByID godoc
// GET /api/v1/quizzes/:id
func (h *QuizHandler) GetByID(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// Create godoc
// POST /api/v1/quizzes
func (h *QuizHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz := &model.Quiz{
		TeacherID:   claims.UserID,
		Title:       req.Title,
		Description: req.Description,
		Questions:   req.Questions,
	}
	issues, err := h.quizService.Create(c.Request.Context(), quiz)
	if err != nil {
		if errors.Is(err, service.ErrQuizInvalid) {
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrQuizInvalid, issueFields(issues))
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// Update godoc
// PUT /api/v1/quizzes/:id
func (h *QuizHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz := &model.Quiz{
		ID:          id,
		TeacherID:   claims.UserID,
		Title:       req.Title,
		Description: req.Description,
		Questions:   req.Questions,
	}
	issues, err := h.quizService.Update(c.Request.Context(), quiz)
	if err != nil {
		if errors.Is(err, service.ErrQuizInvalid) {
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrQuizInvalid, issueFields(issues))
			return
		}
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// Publish godoc
// POST /api/v1/quizzes/:id/publish
func (h *QuizHandler) Publish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	issues, err := h.quizService.Publish(c.Request.Context(), id, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrQuizInvalid) {
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrQuizInvalid, issueFields(issues))
			return
		}
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "quiz published successfully"})
}

// Delete godoc
// DELETE /api/v1/quizzes/:id
func (h *QuizHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "quiz deleted successfully"})
}

func failQuiz(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func issueFields(issues []model.FieldIssue) map[string]string {
	fields := make(map[string]string, len(issues))
	for _, issue := range issues {
		fields[issue.Field] = issue.Issue
	}
	return fields
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepstack/prepstack-backend/internal/middleware"
	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/response"
	"github.com/prepstack/prepstack-backend/internal/service"
	"github.com/prepstack/prepstack-backend/internal/validator"
)

// MockTestHandler handles test management endpoints.
type MockTestHandler struct {
	tests *service.MockTestService
}

// NewMockTestHandler creates a new MockTestHandler.
func NewMockTestHandler(tests *service.MockTestService) *MockTestHandler {
	return &MockTestHandler{tests: tests}
}

// Create godoc
// POST /api/v1/tests
// Registers a generated test with its full question set.
func (h *MockTestHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.tests.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrBadAnswerLetter) {
			response.Fail(c, http.StatusBadRequest, response.ErrBadAnswerKeyLetter)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// List godoc
// GET /api/v1/tests?page=1&per_page=20
// Lists the user's tests, newest first.
func (h *MockTestHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	tests, total, err := h.tests.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, buildPagination(page, perPage, total))
}

// Get godoc
// GET /api/v1/tests/:test_id
// Returns the player-safe payload: questions without answers or explanations.
func (h *MockTestHandler) Get(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.tests.GetPlayerPayload(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, service.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": payload})
}

// Delete godoc
// DELETE /api/v1/tests/:test_id
// Removes a test the user owns, cascading its questions and attempts.
func (h *MockTestHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.tests.Delete(c.Request.Context(), testID, claims.UserID); err != nil {
		if errors.Is(err, service.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func buildPagination(page, perPage, total int) *response.Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	totalPages := (total + perPage - 1) / perPage
	return &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

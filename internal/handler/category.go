package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/storefront-go/internal/middleware"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/service"
)

// CategoryHandler handles HTTP requests for categories.
type CategoryHandler struct {
	service *service.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(svc *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{service: svc}
}

// HandleList handles GET /api/categories requests.
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.List(r.Context(), middleware.IsAdmin(r.Context()))
	if err != nil {
		internalError(w, r, "list categories", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 1, "categories": categories})
}

// HandleGet handles GET /api/categories/{id} requests.
func (h *CategoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	category, err := h.service.Get(r.Context(), id, middleware.IsAdmin(r.Context()))
	if err != nil {
		h.writeError(w, r, "get category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 1, "category": category})
}

// HandleCreate handles POST /api/categories requests.
func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryRequest
	if !decodeValid(w, r, &req) {
		return
	}

	category, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "create category", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   1,
		"message":  "Category created",
		"category": category,
	})
}

// HandleUpdate handles PUT /api/categories/{id} requests.
func (h *CategoryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	var req model.CategoryRequest
	if !decodeValid(w, r, &req) {
		return
	}

	category, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, "update category", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   1,
		"message":  "Category updated",
		"category": category,
	})
}

// HandleDelete handles DELETE /api/categories/{id} requests.
func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, "delete category", err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse("Category deleted"))
}

func (h *CategoryHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse("Category not found"))
	case errors.Is(err, service.ErrCategoryNameTaken):
		writeJSON(w, http.StatusBadRequest, errorResponse("Category name already in use"))
	default:
		internalError(w, r, op, err)
	}
}

func categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid category id"))
		return 0, false
	}
	return id, true
}

package handler

import (
	"errors"
	"net/http"

	"github.com/storefront/storefront-go/internal/middleware"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// HandleRegister handles POST /api/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrEmailInUse) {
			writeJSON(w, http.StatusBadRequest, errorResponse("Email already in use"))
			return
		}
		internalError(w, r, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  1,
		"message": "User registered successfully. Please check your email to verify your account.",
		"user":    user,
	})
}

// HandleVerifyEmail handles GET /api/auth/verify-email?token= requests.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			writeJSON(w, http.StatusBadRequest, errorResponse("Invalid or expired token"))
			return
		}
		internalError(w, r, "verify email", err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse("Email verified successfully. You can now log in!"))
}

// HandleLogin handles POST /api/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, errorResponse("Invalid credentials"))
		case errors.Is(err, service.ErrEmailNotVerified):
			writeJSON(w, http.StatusForbidden, errorResponse("Please verify your email before logging in"))
		default:
			internalError(w, r, "login", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleAdminLogin handles POST /api/auth/admin-login requests.
func (h *AuthHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	resp, err := h.service.AdminLogin(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorResponse("Invalid credentials"))
			return
		}
		internalError(w, r, "admin login", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleChangePassword handles POST /api/auth/change-password requests.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse(middleware.MsgUnauthorized))
		return
	}

	var req model.ChangePasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := h.service.ChangePassword(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCurrentPassword):
			writeJSON(w, http.StatusUnauthorized, errorResponse("Current password is incorrect"))
		case errors.Is(err, service.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse("User not found"))
		default:
			internalError(w, r, "change password", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, successResponse("Password changed successfully"))
}

// HandleForgotPassword handles POST /api/auth/forgot-password requests.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrEmailNotFound) {
			writeJSON(w, http.StatusBadRequest, errorResponse("Email not found"))
			return
		}
		internalError(w, r, "forgot password", err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse("Password reset email sent. Check your inbox."))
}

// HandleResetPassword handles POST /api/auth/reset-password requests.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			writeJSON(w, http.StatusBadRequest, errorResponse("Invalid or expired token"))
			return
		}
		internalError(w, r, "reset password", err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse("Password reset successfully. You can now log in."))
}

// HandleMe handles GET /api/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse(middleware.MsgUnauthorized))
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse("User not found"))
			return
		}
		internalError(w, r, "get user", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 1, "user": user})
}

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"echoheritage/core/auth"
	"echoheritage/logger"
	"echoheritage/model"
	"echoheritage/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// AuthUser is the authenticated identity attached to a request.
type AuthUser struct {
	ID    int64
	Email string
	Role  string
}

type contextKey string

const authUserKey contextKey = "authUser"

// WithAuthUser attaches the identity to a context.
func WithAuthUser(ctx context.Context, user AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, user)
}

// AuthUserFrom extracts the identity set by AuthMiddleware.
func AuthUserFrom(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(authUserKey).(AuthUser)
	return user, ok
}

// AuthMiddleware validates the Bearer token and stores the caller's identity
// in the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			apiError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			apiError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(h.cfg.JWTSecret, parts[1])
		if err != nil {
			apiError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user := AuthUser{ID: claims.UserID, Email: claims.Email, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
	}
}

// RequireRole wraps a handler so only callers holding one of the given roles
// may reach it. Must run inside AuthMiddleware.
func (h *APIHandler) RequireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := AuthUserFrom(r.Context())
		if !ok {
			apiError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		for _, role := range roles {
			if user.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		apiError(w, http.StatusForbidden, "insufficient permissions")
	}
}

// SignupHandler registers a new account and sends a verification mail.
func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		apiError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("failed to hash password", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user := &model.User{
		Name:         req.Name,
		Country:      req.Country,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		EmailToken:   uuid.NewString(),
	}

	id, err := h.userRepo.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			apiError(w, http.StatusConflict, "email already registered")
			return
		}
		logger.Error("failed to create user", logger.String("email", req.Email), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	user.ID = id

	h.mail.SendVerification(user.Email, user.EmailToken)
	logger.Info("account created", logger.Int64("userId", id), logger.String("email", user.Email))

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "account created, check your inbox to verify your email",
		"user":    user,
	})
}

// LoginHandler authenticates by email and password and issues a JWT.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		apiError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.userRepo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		logger.Error("failed to look up user", logger.String("email", req.Email), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		apiError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.EmailVerified {
		apiError(w, http.StatusForbidden, "email not verified")
		return
	}

	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, user.Email, user.Role)
	if err != nil {
		logger.Error("failed to generate token", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.userRepo.TouchLastActive(r.Context(), user.ID); err != nil {
		logger.Warn("failed to touch last_active", logger.Int64("userId", user.ID), logger.ErrorField(err))
	}

	logger.Info("login", logger.Int64("userId", user.ID), logger.String("email", user.Email))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// ActivateHandler verifies an email address by its one-time token.
func (h *APIHandler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		apiError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.userRepo.GetUserByEmailToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "invalid or expired token")
			return
		}
		logger.Error("failed to look up email token", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.userRepo.MarkVerified(r.Context(), user.ID); err != nil {
		logger.Error("failed to mark account verified", logger.Int64("userId", user.ID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to activate account")
		return
	}

	logger.Info("account activated", logger.Int64("userId", user.ID))
	respondJSON(w, http.StatusOK, map[string]string{"message": "account activated"})
}

// ForgotPasswordHandler issues a reset token by mail. Responds identically
// whether or not the address exists.
func (h *APIHandler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		apiError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.userRepo.GetUserByEmail(r.Context(), req.Email)
	if err == nil {
		token := uuid.NewString()
		if err := h.userRepo.SetEmailToken(r.Context(), user.ID, token); err != nil {
			logger.Error("failed to store reset token", logger.Int64("userId", user.ID), logger.ErrorField(err))
		} else {
			h.mail.SendPasswordReset(user.Email, token)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		logger.Error("failed to look up user for reset", logger.ErrorField(err))
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "if the address is registered, a reset mail was sent",
	})
}

// ResetPasswordHandler sets a new password given a valid reset token.
func (h *APIHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.Password == "" {
		apiError(w, http.StatusBadRequest, "token and password are required")
		return
	}

	user, err := h.userRepo.GetUserByEmailToken(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "invalid or expired token")
			return
		}
		logger.Error("failed to look up reset token", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("failed to hash password", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	if err := h.userRepo.SetPassword(r.Context(), user.ID, hash); err != nil {
		logger.Error("failed to set password", logger.Int64("userId", user.ID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	logger.Info("password reset", logger.Int64("userId", user.ID))
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// ListUsersHandler returns every account. Admin only.
func (h *APIHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.ListUsers(r.Context())
	if err != nil {
		logger.Error("failed to list users", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// UpdateRoleHandler changes an account's role. Superadmin only.
func (h *APIHandler) UpdateRoleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		apiError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Role {
	case model.RoleUser, model.RoleAdmin, model.RoleSuperAdmin:
	default:
		apiError(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := h.userRepo.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("failed to look up user", logger.Int64("userId", userID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.userRepo.UpdateRole(r.Context(), userID, req.Role); err != nil {
		logger.Error("failed to update role", logger.Int64("userId", userID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	h.mail.SendRoleUpdate(user.Email, req.Role)
	logger.Info("role updated",
		logger.Int64("userId", userID),
		logger.String("role", req.Role))
	respondJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

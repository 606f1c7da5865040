package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
)

const maxNameLen = 200

// HandleSignup handles POST /api/auth/signup.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	email, err := model.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("name is required and must be at most %d characters", maxNameLen))
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleLearner
	}
	if err := model.ValidateSignupRole(role); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeInternalError(w, r, "failed to create account", err)
		return
	}
	user, err := h.store.CreateUser(r.Context(), model.User{
		Name:               name,
		Email:              email,
		Role:               role,
		PasswordHash:       &hash,
		Preferences:        map[string]any{},
		LearningInterests:  []string{},
		LanguagePreference: model.DefaultLanguage,
	})
	if err != nil {
		if isConflict(err) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "an account with this email already exists")
			return
		}
		h.writeInternalError(w, r, "failed to create account", err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
	h.logger.Info("account created", "user_id", user.ID, "role", user.Role)
}

// HandleLogin handles POST /api/auth/login. Unknown emails and wrong
// passwords take the same time and return the same error.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	email, err := model.NormalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid email or password")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !isNotFound(err) {
			h.writeInternalError(w, r, "failed to sign in", err)
			return
		}
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid email or password")
		return
	}
	if user.PasswordHash == nil {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid email or password")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, *user.PasswordHash)
	if err != nil {
		h.logger.Error("stored password hash is malformed", "user_id", user.ID, "error", err)
	}
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid email or password")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// HandleMe handles GET /api/auth/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	user, err := h.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "user not found")
			return
		}
		h.writeInternalError(w, r, "failed to load profile", err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

func (h *Handlers) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}
	writeJSON(w, r, status, model.AuthResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// EnsureAdmin makes sure the configured admin account exists with the admin
// role. It does nothing when email or password is empty. An existing account
// keeps its password.
func (h *Handlers) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		h.logger.Info("no admin credentials configured, skipping admin bootstrap")
		return nil
	}
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	existing, err := h.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == model.RoleAdmin {
			return nil
		}
		if err := h.store.SetUserRole(ctx, existing.ID, model.RoleAdmin); err != nil {
			return fmt.Errorf("ensure admin: promote: %w", err)
		}
		h.logger.Info("promoted existing account to admin", "user_id", existing.ID)
		return nil
	case !isNotFound(err):
		return fmt.Errorf("ensure admin: lookup: %w", err)
	}

	if err := auth.ValidatePassword(password); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("ensure admin: hash password: %w", err)
	}
	user, err := h.store.CreateUser(ctx, model.User{
		Name:         "Administrator",
		Email:        email,
		Role:         model.RoleAdmin,
		PasswordHash: &hash,
	})
	if err != nil {
		return fmt.Errorf("ensure admin: create: %w", err)
	}
	h.logger.Info("seeded admin account", "user_id", user.ID)
	return nil
}

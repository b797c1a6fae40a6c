package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/auth"
	"github.com/ppissanetzky/barcode-sub000/internal/forum"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// Authenticator checks forum credentials and returns the forum user.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (int64, string, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	Forum     Authenticator
	Admins    map[int64]bool
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type sessionUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  sessionUser `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.Login == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "login and password required")
		return
	}

	id, name, err := h.Forum.Authenticate(r.Context(), req.Login, req.Password)
	if errors.Is(err, forum.ErrBadCredentials) {
		slog.Warn("login failed", "login", req.Login, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.Error("forum login failed", "error", err)
		jsonError(w, http.StatusBadGateway, codeInternal, "forum unavailable")
		return
	}

	admin := h.Admins[id]
	token, err := auth.GenerateToken(h.JWTSecret, id, name, admin, time.Now())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, codeInternal, "failed to generate token")
		return
	}

	slog.Info("user logged in", "user", id, "name", name, "admin", admin)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, User: sessionUser{ID: id, Name: name, Admin: admin}})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, codeUnauthorized, "not authenticated")
		return
	}

	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		slog.Error("revoking token", "error", err)
		jsonError(w, http.StatusInternalServerError, codeInternal, "failed to log out")
		return
	}

	slog.Info("user logged out", "user", claims.UserID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	jsonResponse(w, http.StatusOK, sessionUser{ID: claims.UserID, Name: claims.Name, Admin: claims.Admin})
}

package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ppissanetzky/barcode-sub000/internal/equipment"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/settings"
)

// Config holds what the router needs.
type Config struct {
	DB        *sql.DB
	JWTSecret string
	Service   *equipment.Service
	Settings  *settings.Settings
	Forum     Authenticator
	// Admins are the forum users allowed to edit items and settings.
	Admins []int64
	// AllowedOrigins enables CORS for browser clients on other hosts.
	AllowedOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	admins := make(map[int64]bool, len(cfg.Admins))
	for _, id := range cfg.Admins {
		admins[id] = true
	}

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret, Forum: cfg.Forum, Admins: admins}
	itemsHandler := &ItemsHandler{DB: cfg.DB}
	queueHandler := &QueueHandler{Service: cfg.Service}
	settingsHandler := &SettingsHandler{Settings: cfg.Settings}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.DB)
	admin := func(h http.HandlerFunc) http.Handler { return authMW(RequireAdmin(h)) }
	member := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, codeInternal, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("POST /api/auth/logout", member(authHandler.Logout))
	mux.Handle("GET /api/auth/me", member(authHandler.Me))

	// Catalog: read (members), write (admins).
	mux.Handle("GET /api/equipment", member(queueHandler.List))
	mux.Handle("POST /api/equipment", admin(itemsHandler.Create))
	mux.Handle("PUT /api/equipment/{id}", admin(itemsHandler.Update))
	mux.Handle("PUT /api/equipment/{id}/image", admin(itemsHandler.UploadImage))
	mux.Handle("GET /api/equipment/{id}/image", member(itemsHandler.GetImage))

	// Queue.
	mux.Handle("GET /api/equipment/{id}", member(queueHandler.Get))
	mux.Handle("GET /api/equipment/{id}/recipients", member(queueHandler.Recipients))
	mux.Handle("GET /api/equipment/{id}/history", member(queueHandler.History))
	mux.Handle("POST /api/equipment/code", member(queueHandler.RequestCode))
	mux.Handle("POST /api/equipment/{id}/queue", member(queueHandler.Enroll))
	mux.Handle("DELETE /api/equipment/{id}/queue", member(queueHandler.DropOut))
	mux.Handle("POST /api/equipment/{id}/done", member(queueHandler.MarkDone))
	mux.Handle("POST /api/equipment/{id}/transfer", member(queueHandler.Transfer))

	// Settings (admins).
	mux.Handle("GET /api/settings", admin(settingsHandler.Get))
	mux.Handle("PUT /api/settings", admin(settingsHandler.Update))

	var h http.Handler = mux
	if len(cfg.AllowedOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		})(h)
	}
	h = LoggingMiddleware(h)
	h = middleware.Recoverer(h)
	h = middleware.RequestID(h)
	return h
}

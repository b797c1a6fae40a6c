package api

import (
	"log/slog"
	"net/http"

	"github.com/ppissanetzky/barcode-sub000/internal/settings"
)

// SettingsHandler lets admins read and change runtime settings.
type SettingsHandler struct {
	Settings *settings.Settings
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.Settings.Values())
}

// Update handles PUT /api/settings. Fields left out keep their value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	v := h.Settings.Values()
	if err := decodeJSON(r, &v); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if err := v.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if err := h.Settings.Update(r.Context(), v); err != nil {
		serviceError(w, r, err)
		return
	}

	slog.Info("settings updated", "by", GetClaims(r.Context()).UserID)
	jsonResponse(w, http.StatusOK, v)
}

package api

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ppissanetzky/barcode-sub000/internal/imaging"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// maxPictureBytes limits picture uploads.
const maxPictureBytes = 5 << 20

// ItemsHandler handles the admin endpoints that edit the item catalog.
type ItemsHandler struct {
	DB *sql.DB
}

type itemRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	MaxDays       int    `json:"max_days"`
	AlertStartDay *int   `json:"alert_start_day"`
	ThreadID      int64  `json:"thread_id"`
}

func (req itemRequest) params() store.ItemParams {
	return store.ItemParams{
		Name:          req.Name,
		Description:   req.Description,
		MaxDays:       req.MaxDays,
		AlertStartDay: req.AlertStartDay,
		ThreadID:      req.ThreadID,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func itemStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidItem):
		jsonError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, store.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "INVALID_ITEM", "item not found")
	default:
		serviceError(w, r, err)
	}
}

// Create handles POST /api/equipment.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.params())
	if err != nil {
		itemStoreError(w, r, err)
		return
	}

	slog.Info("item created", "item", item.ID, "name", item.Name, "by", GetClaims(r.Context()).UserID)
	jsonResponse(w, http.StatusCreated, item)
}

// Update handles PUT /api/equipment/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	if err := store.UpdateItem(r.Context(), h.DB, id, req.params()); err != nil {
		itemStoreError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	slog.Info("item updated", "item", id, "by", GetClaims(r.Context()).UserID)
	jsonResponse(w, http.StatusOK, item)
}

// UploadImage handles PUT /api/equipment/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes)
	if err := r.ParseMultipartForm(maxPictureBytes); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "image file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "failed to read image")
		return
	}

	pic, err := imaging.Prepare(data)
	if err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "image must be JPEG, PNG or WebP")
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, pic.Data, pic.MIME); err != nil {
		itemStoreError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"width": pic.Width, "height": pic.Height})
}

// GetImage handles GET /api/equipment/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, codeNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

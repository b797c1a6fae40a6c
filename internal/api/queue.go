package api

import (
	"net/http"

	"github.com/ppissanetzky/barcode-sub000/internal/equipment"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
	"github.com/ppissanetzky/barcode-sub000/internal/queue"
)

// QueueHandler handles the endpoints members use to borrow equipment.
type QueueHandler struct {
	Service *equipment.Service
}

// List handles GET /api/equipment.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Items(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if items == nil {
		items = []model.UserItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/equipment/{id}.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.Service.View(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// Recipients handles GET /api/equipment/{id}/recipients.
func (h *QueueHandler) Recipients(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	recipients, err := h.Service.Recipients(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if recipients == nil {
		recipients = []queue.Recipient{}
	}
	jsonResponse(w, http.StatusOK, recipients)
}

// History handles GET /api/equipment/{id}/history.
func (h *QueueHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.Service.History(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if history == nil {
		history = []model.HistoryRecord{}
	}
	jsonResponse(w, http.StatusOK, history)
}

type codeRequest struct {
	Phone string `json:"phone"`
}

// RequestCode handles POST /api/equipment/code.
func (h *QueueHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	res, err := h.Service.RequestCode(r.Context(), GetClaims(r.Context()).UserID, req.Phone)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

type enrollRequest struct {
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Code     string `json:"code"`
}

// Enroll handles POST /api/equipment/{id}/queue.
func (h *QueueHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req enrollRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	v, err := h.Service.Enroll(r.Context(), equipment.EnrollRequest{
		ItemID:   id,
		UserID:   GetClaims(r.Context()).UserID,
		Phone:    req.Phone,
		Location: req.Location,
		Code:     req.Code,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// DropOut handles DELETE /api/equipment/{id}/queue.
func (h *QueueHandler) DropOut(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.Service.DropOut(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// MarkDone handles POST /api/equipment/{id}/done.
func (h *QueueHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := h.Service.MarkDone(r.Context(), id, GetClaims(r.Context()).UserID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

type transferRequest struct {
	// From defaults to the caller.
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Transfer handles POST /api/equipment/{id}/transfer.
func (h *QueueHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	from := req.From
	if from == 0 {
		from = claims.UserID
	}
	if req.To == 0 {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "recipient required")
		return
	}

	res, err := h.Service.Transfer(r.Context(), equipment.TransferRequest{
		ItemID:     id,
		ActorID:    claims.UserID,
		FromUserID: from,
		ToUserID:   req.To,
		Admin:      claims.Admin,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

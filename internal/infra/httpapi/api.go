package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/user"
)

type idsRequest struct {
	IDs []string `json:"ids"`
}

type deletionStatusResponse struct {
	Status    string     `json:"status"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (h *handler) mountAPI(r chi.Router) {
	if h.Cases != nil {
		r.Get("/cases", h.listCases)
		r.Post("/cases", h.createCase)
		r.Post("/cases/bulk-delete", h.bulkDeleteCases)
		r.Get("/cases/{id}", h.getCase)
		r.Put("/cases/{id}", h.updateCase)
		r.Delete("/cases/{id}", h.deleteCase)
		r.Get("/deadlines/summary", h.deadlineSummary)
	}
	if h.Inbox != nil {
		r.Get("/notifications", h.listNotifications)
		r.Get("/notifications/unread-count", h.unreadCount)
		r.Post("/notifications/read-all", h.markAllRead)
		r.Post("/notifications/bulk-delete", h.bulkDeleteNotifications)
		r.Post("/notifications/{id}/read", h.markRead)
		r.Delete("/notifications/{id}", h.deleteNotification)
	}
	if h.Preferences != nil {
		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.updatePreferences)
	}
	if h.Accounts != nil {
		r.Get("/account/deletion", h.deletionStatus)
		r.Post("/account/deletion", h.scheduleDeletion)
		r.Delete("/account/deletion", h.cancelDeletion)
	}
}

func (h *handler) listCases(w http.ResponseWriter, r *http.Request) {
	out, err := h.Cases.ListCases(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) createCase(w http.ResponseWriter, r *http.Request) {
	var in cases.Case
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	c, err := h.Cases.CreateCase(r.Context(), in)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cases.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "case not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) updateCase(w http.ResponseWriter, r *http.Request) {
	var in cases.Case
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	c, err := h.Cases.UpdateCase(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) deleteCase(w http.ResponseWriter, r *http.Request) {
	if err := h.Cases.DeleteCase(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) bulkDeleteCases(w http.ResponseWriter, r *http.Request) {
	var in idsRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	res, err := h.Cases.BulkDeleteCases(r.Context(), in.IDs)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) deadlineSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Cases.DeadlineSummary(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.Inbox.List(r.Context(), unreadOnly, limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Inbox.UnreadCount(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Inbox.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Inbox.MarkAllRead(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.Inbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) bulkDeleteNotifications(w http.ResponseWriter, r *http.Request) {
	var in idsRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	res, err := h.Inbox.BulkDelete(r.Context(), in.IDs)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.Preferences.Get(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var in user.Preferences
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	p, err := h.Preferences.Update(r.Context(), in)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deletionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Accounts.DeletionStatus(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	resp := deletionStatusResponse{Status: st.Phase.String()}
	if !st.At.IsZero() {
		at := st.At
		resp.DeletedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) scheduleDeletion(w http.ResponseWriter, r *http.Request) {
	at, err := h.Accounts.ScheduleAccountDeletion(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, deletionStatusResponse{Status: user.PhasePendingDeletion.String(), DeletedAt: &at})
}

func (h *handler) cancelDeletion(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.CancelAccountDeletion(r.Context()); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deletionStatusResponse{Status: user.PhaseActive.String()})
}

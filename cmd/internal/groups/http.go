package groups

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"huddle/cmd/internal/auth/session"
)

const maxBodyBytes = 16 << 10

// Handler exposes the membership HTTP surface. Every route requires a verified caller.
type Handler struct {
	log *slog.Logger
	svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc *Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc}
}

// Register mounts routes on mux, each wrapped by guard.
func (h *Handler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /groups", guard(http.HandlerFunc(h.handleList)))
	mux.Handle("POST /groups", guard(http.HandlerFunc(h.handleCreate)))
	mux.Handle("PATCH /groups/{groupId}", guard(http.HandlerFunc(h.handleRename)))
	mux.Handle("DELETE /groups/{groupId}", guard(http.HandlerFunc(h.handleDelete)))
	mux.Handle("POST /groups/{groupId}/members", guard(http.HandlerFunc(h.handleJoin)))
	mux.Handle("DELETE /groups/{groupId}/members/me", guard(http.HandlerFunc(h.handleLeave)))
	mux.Handle("DELETE /groups/{groupId}/members/{userId}", guard(http.HandlerFunc(h.handleRemove)))
}

type channelResponse struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	RoomID string `json:"roomId"`
}

type groupResponse struct {
	ID       string            `json:"_id"`
	Name     string            `json:"name"`
	OwnerID  string            `json:"ownerId"`
	RoomID   string            `json:"roomId"`
	Channels []channelResponse `json:"channels"`
}

func toGroupResponse(g Group) groupResponse {
	out := groupResponse{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, RoomID: g.RoomID, Channels: []channelResponse{}}
	for _, c := range g.Channels {
		out.Channels = append(out.Channels, channelResponse{ID: c.ID, Name: c.Name, RoomID: c.RoomID})
	}
	return out
}

type createRequest struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	gs, err := h.svc.ForUser(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]groupResponse, 0, len(gs))
	for _, g := range gs {
		out = append(out, toGroupResponse(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := h.svc.Create(r.Context(), id.UserID, req.Name, req.Channels)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(g))
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := h.svc.Rename(r.Context(), id.UserID, r.PathValue("groupId"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	if err := h.svc.Delete(r.Context(), id.UserID, r.PathValue("groupId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	g, err := h.svc.Join(r.Context(), r.PathValue("groupId"), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	if err := h.svc.Leave(r.Context(), r.PathValue("groupId"), id.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	if err := h.svc.Remove(r.Context(), id.UserID, r.PathValue("groupId"), r.PathValue("userId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Group not found")
	case errors.Is(err, ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Only the group owner can do that")
	case errors.Is(err, ErrOwnerCannotLeave):
		writeMessage(w, http.StatusConflict, "The group owner cannot leave the group")
	case errors.Is(err, ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Invalid group name or channels")
	default:
		h.log.Error("groups.http.fail", "path", r.URL.Path, "err", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

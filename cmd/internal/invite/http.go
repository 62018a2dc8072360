package invite

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"huddle/cmd/internal/auth/session"
	"huddle/cmd/internal/groups"
)

const maxBodyBytes = 4 << 10

// Handler exposes invite routes. Every route requires a verified caller.
type Handler struct {
	log     *slog.Logger
	svc     *Service
	baseURL string
	now     func() time.Time
}

// NewHandler constructs a Handler. baseURL prefixes generated invite links;
// when empty the link is a path relative to the client origin.
func NewHandler(log *slog.Logger, svc *Service, baseURL string) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:     log,
		svc:     svc,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts routes on mux, each wrapped by guard.
func (h *Handler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /groups/{groupId}/invites", guard(http.HandlerFunc(h.handleCreate)))
	mux.Handle("DELETE /groups/{groupId}/invites/{inviteId}", guard(http.HandlerFunc(h.handleRevoke)))
	mux.Handle("POST /invites", guard(http.HandlerFunc(h.handleAccept)))
	mux.Handle("GET /invites/{inviteCode}/group", guard(http.HandlerFunc(h.handlePreview)))
}

type createRequest struct {
	// ExpTime is the lifetime in milliseconds; zero uses the default.
	ExpTime int64 `json:"expTime"`
	MaxUses int   `json:"maxUses"`
}

type acceptRequest struct {
	InviteCode string `json:"inviteCode"`
}

type inviteData struct {
	ID         string    `json:"_id"`
	InviteCode string    `json:"inviteCode"`
	InviteURL  string    `json:"inviteUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
	MaxUses    int       `json:"maxUses"`
}

type groupSummary struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type groupData struct {
	Group groupSummary `json:"group"`
}

type dataResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
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
	if req.ExpTime < 0 {
		writeMessage(w, http.StatusBadRequest, "expTime can't be a negative value")
		return
	}

	inv, code, err := h.svc.CreateInvite(r.Context(), CreateInput{
		GroupID:   r.PathValue("groupId"),
		CreatedBy: id.UserID,
		TTL:       time.Duration(req.ExpTime) * time.Millisecond,
		MaxUses:   req.MaxUses,
		Now:       h.now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dataResponse{
		Message: "Invite generated successfully",
		Data: inviteData{
			ID:         inv.ID,
			InviteCode: code,
			InviteURL:  h.inviteURL(code),
			ExpiresAt:  inv.ExpiresAt,
			MaxUses:    inv.MaxUses,
		},
	})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}

	var req acceptRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.InviteCode) == "" {
		writeMessage(w, http.StatusBadRequest, "inviteCode is required")
		return
	}

	g, err := h.svc.Accept(r.Context(), req.InviteCode, id.UserID, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Message: "Successfully joined group",
		Data:    groupData{Group: groupSummary{ID: g.ID, Name: g.Name}},
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Preview(r.Context(), r.PathValue("inviteCode"), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: groupData{Group: groupSummary{ID: g.ID, Name: g.Name}}})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFrom(r.Context())
	if !ok {
		session.WriteUnauthorized(w)
		return
	}
	err := h.svc.Revoke(r.Context(), id.UserID, r.PathValue("groupId"), r.PathValue("inviteId"), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) inviteURL(code string) string {
	return h.baseURL + "/invite/" + url.PathEscape(code)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsInvalidCode(err):
		writeMessage(w, http.StatusNotFound, "Invalid invite code")
	case errors.Is(err, ErrAlreadyMember):
		writeMessage(w, http.StatusConflict, "You are already a member of this group")
	case errors.Is(err, ErrNotMember), errors.Is(err, ErrForbidden), errors.Is(err, groups.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Not allowed for this group")
	case errors.Is(err, groups.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Group not found")
	case errors.Is(err, groups.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Invalid request")
	default:
		h.log.Error("invite.http.fail", "path", r.URL.Path, "err", err)
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

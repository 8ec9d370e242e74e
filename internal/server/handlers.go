package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/bot"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
)

const maxEventBytes = 64 << 10

// EventHandler is the subset of [bot.Handler] the webhook needs.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev bot.Event) (bot.Reply, bool)
}

// EventsHandler accepts chat events posted by a chat bridge and answers with the reply to send back.
//
// Ignored events get 204 No Content.
type EventsHandler struct {
	bot    EventHandler
	logger *log.Logger
}

// NewEventsHandler creates the POST /events handler.
func NewEventsHandler(b EventHandler, logger *log.Logger) *EventsHandler {
	return &EventsHandler{bot: b, logger: logger}
}

func (h *EventsHandler) Routes() []string {
	return []string{"POST /events"}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ev bot.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&ev); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "event too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if ev.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}

	reply, handled := h.bot.HandleEvent(r.Context(), ev)
	if !handled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// ShareLister reads the audit log. Implemented by repositories.ShareRepository.
type ShareLister interface {
	Recent(ctx context.Context, limit int) ([]*models.ShareRecord, error)
}

type shareView struct {
	ID          string         `json:"id"`
	RequestID   string         `json:"request_id"`
	Channel     string         `json:"channel"`
	Author      string         `json:"author"`
	Kind        string         `json:"kind"`
	AssetID     string         `json:"asset_id"`
	DisplayName string         `json:"display_name"`
	Candidates  int            `json:"candidates"`
	Added       int            `json:"added"`
	Outcome     models.Outcome `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// SharesHandler serves GET /shares?limit=N from the audit log.
type SharesHandler struct {
	shares ShareLister
	logger *log.Logger
}

// NewSharesHandler creates the GET /shares handler.
func NewSharesHandler(shares ShareLister, logger *log.Logger) *SharesHandler {
	return &SharesHandler{shares: shares, logger: logger}
}

func (h *SharesHandler) Routes() []string {
	return []string{"GET /shares"}
}

func (h *SharesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.shares.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list shares", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to list shares")
		return
	}

	views := make([]shareView, len(records))
	for i, rec := range records {
		views[i] = shareView{
			ID:          rec.ID,
			RequestID:   rec.RequestID,
			Channel:     rec.Channel,
			Author:      rec.Author,
			Kind:        string(rec.Kind),
			AssetID:     rec.AssetID,
			DisplayName: rec.DisplayName,
			Candidates:  rec.Candidates,
			Added:       rec.Added,
			Outcome:     rec.Outcome,
			Error:       rec.Error,
			CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": views})
}

// HealthHandler serves GET /healthz.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// WebhookOpts configures [NewWebhookRouter].
type WebhookOpts struct {
	Bot    EventHandler
	Shares ShareLister // optional, enables GET /shares
	Token  string      // bearer token for /events and /shares, empty disables the check
	Logger *log.Logger
}

// NewWebhookRouter builds the bot's HTTP surface. /healthz is served without the bearer check.
func NewWebhookRouter(opts WebhookOpts) *BasicRouter {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	r := NewBasicRouter()
	r.Use(RequestID(), Logging(opts.Logger), Recover(opts.Logger))
	r.Handle(http.MethodGet, "/healthz", HealthHandler())

	r.Use(BearerToken(opts.Token))
	r.Handler(NewEventsHandler(opts.Bot, opts.Logger))
	if opts.Shares != nil {
		r.Handler(NewSharesHandler(opts.Shares, opts.Logger))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

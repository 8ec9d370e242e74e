// package bot turns chat events into shares and shares into one reply each.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	"github.com/desertthunder/playlistbot/internal/tasks"
)

const (
	DefaultChannel = "music"
	DefaultTimeout = 60 * time.Second
)

// Event is one inbound chat message.
type Event struct {
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Reply is the single response to a handled event.
type Reply struct {
	RequestID string         `json:"request_id"`
	Text      string         `json:"text"`
	Outcome   models.Outcome `json:"outcome"`
}

// Processor runs a share against the destination playlist. Implemented by [tasks.Pipeline].
type Processor interface {
	Process(ctx context.Context, progress chan<- tasks.ProgressUpdate, dest models.Destination, ref models.AssetReference) (*tasks.ShareResult, error)
}

// ShareRecorder persists an audit entry per handled event.
type ShareRecorder interface {
	Create(ctx context.Context, record *models.ShareRecord) error
}

// HandlerOpts configures a [Handler].
type HandlerOpts struct {
	Channel  string        // only events from this channel are handled, defaults to "music"
	Timeout  time.Duration // per-event deadline, defaults to 60s
	Recorder ShareRecorder // optional audit log
	Logger   *log.Logger
}

// Handler filters chat events, runs the share and formats the reply.
type Handler struct {
	processor Processor
	dest      models.Destination
	channel   string
	timeout   time.Duration
	recorder  ShareRecorder
	logger    *log.Logger
}

// NewHandler creates a handler that adds shares to dest.
func NewHandler(processor Processor, dest models.Destination, opts HandlerOpts) *Handler {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Handler{
		processor: processor,
		dest:      dest,
		channel:   opts.Channel,
		timeout:   opts.Timeout,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
}

// Channel returns the designated channel name.
func (h *Handler) Channel() string { return h.channel }

// HandleEvent processes ev and returns its reply. The bool is false when the event is
// ignored: another channel, or no link in the message.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) (Reply, bool) {
	if ev.Channel != h.channel {
		return Reply{}, false
	}

	ref, err := models.ParseReference(ev.Content)
	if errors.Is(err, shared.ErrNoReference) {
		return Reply{}, false
	}

	requestID := shared.GenerateID()
	logger := shared.WithLogger(h.logger, "request_id", requestID, "author", ev.Author)

	record := &models.ShareRecord{
		ID:         shared.GenerateID(),
		RequestID:  requestID,
		Channel:    ev.Channel,
		Author:     ev.Author,
		Kind:       ref.Kind,
		AssetID:    ref.ID,
		PlaylistID: h.dest.PlaylistID,
	}

	if err != nil {
		logger.Info("unsupported share", "kind", ref.Kind, "id", ref.ID)
		reply := Reply{RequestID: requestID, Text: unsupportedReply(ref.Kind), Outcome: models.OutcomeUnsupported}
		record.Outcome = reply.Outcome
		record.Error = err.Error()
		h.record(ctx, logger, record)
		return reply, true
	}

	logger.Info("handling share", "kind", ref.Kind, "id", ref.ID)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	started := time.Now()
	result, err := h.processor.Process(ctx, nil, h.dest, ref)
	if result == nil {
		result = &tasks.ShareResult{Reference: ref, Destination: h.dest}
	}

	reply := Reply{RequestID: requestID, Outcome: result.Outcome(err)}
	if err != nil {
		logger.Error("share failed", "kind", ref.Kind, "id", ref.ID, "error", err, "elapsed", time.Since(started))
		reply.Text = errorReply(ref, result, h.dest, err)
		record.Error = err.Error()
	} else {
		logger.Info("share handled", "outcome", reply.Outcome, "added", result.Added.Len(), "elapsed", time.Since(started))
		reply.Text = successReply(ref, result, h.dest)
	}

	record.DisplayName = result.DisplayName
	record.Candidates = result.Candidates.Len()
	record.Added = result.Added.Len()
	record.Outcome = reply.Outcome
	h.record(ctx, logger, record)

	return reply, true
}

func (h *Handler) record(ctx context.Context, logger *log.Logger, record *models.ShareRecord) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Create(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("failed to record share", "error", err)
	}
}

func successReply(ref models.AssetReference, result *tasks.ShareResult, dest models.Destination) string {
	name := displayName(ref, result)
	if result.AlreadyPresent() {
		return fmt.Sprintf("%s %q already exists in playlist %q", ref.Kind.Title(), name, dest.Name)
	}
	if ref.Kind == models.KindTrack || result.Added.Len() == result.Candidates.Len() {
		return fmt.Sprintf("%s %q added to %q", ref.Kind.Title(), name, dest.Name)
	}
	return fmt.Sprintf("%s %q added to %q (%d new of %d tracks)",
		ref.Kind.Title(), name, dest.Name, result.Added.Len(), result.Candidates.Len())
}

func unsupportedReply(kind models.ShareKind) string {
	return fmt.Sprintf("Unsupported share type %q, share a track, album or playlist link", string(kind))
}

func errorReply(ref models.AssetReference, result *tasks.ShareResult, dest models.Destination, err error) string {
	var partial *tasks.PartialAppendError
	switch {
	case errors.As(err, &partial) && !partial.Appended.Empty():
		return fmt.Sprintf("Only %d of %d tracks from %s %q were added to %q, share it again to add the rest",
			partial.Appended.Len(), result.Missing.Len(), ref.Kind, displayName(ref, result), dest.Name)
	case errors.Is(err, shared.ErrUnsupportedShareType):
		return unsupportedReply(ref.Kind)
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Sprintf("Couldn't find that %s on Spotify", ref.Kind)
	case errors.Is(err, shared.ErrRateLimited):
		return "Spotify is rate limiting the bot right now, try again in a minute"
	case errors.Is(err, shared.ErrAuthFailure):
		return "The bot's Spotify login was rejected, ask an admin to run auth again"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Timed out adding that %s, try again later", ref.Kind)
	case errors.Is(err, shared.ErrTransient):
		return "Spotify is having trouble right now, try again later"
	default:
		return fmt.Sprintf("Something went wrong adding that %s to %q", ref.Kind, dest.Name)
	}
}

func displayName(ref models.AssetReference, result *tasks.ShareResult) string {
	if result.DisplayName != "" {
		return result.DisplayName
	}
	return ref.ID
}

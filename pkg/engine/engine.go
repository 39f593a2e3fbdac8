// Package engine runs chat turns: it feeds the backend stream into the
// reconciler, extracts and resolves the directive once the text is
// complete, and persists both sides of the turn.
package engine

import (
	"context"
	"errors"
	"time"

	"chatstream/pkg/actions"
	"chatstream/pkg/calendar"
	"chatstream/pkg/config"
	"chatstream/pkg/integrations"
	"chatstream/pkg/limiter"
	"chatstream/pkg/models"
	"chatstream/pkg/reconcile"
	"chatstream/pkg/store"
	"chatstream/pkg/stream"
)

var (
	ErrRateLimited   = errors.New("too many messages, slow down")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrSessionClosed = errors.New("session closed")
	ErrNoForm        = errors.New("message has no form attachment")
)

// DefaultLeadSuccess is shown after a lead form is stored when the form has
// no success message of its own.
const DefaultLeadSuccess = "Thank you! Your information has been submitted."

// Store is the persistence the engine needs.
type Store interface {
	actions.Source
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	FindConversation(ctx context.Context, agentID, deviceID string) (models.Conversation, error)
	AppendMessage(ctx context.Context, convID string, msg models.Message) (models.Message, error)
	UpdateConversationMetadata(ctx context.Context, convID string, upd models.ConversationUpdate) (models.Conversation, error)
	Subscribe(ctx context.Context, convID string) (*store.Subscription, error)
}

type TicketSink interface {
	CreateTicket(ctx context.Context, req integrations.TicketRequest) (integrations.TicketResult, error)
}

type LeadSink interface {
	SubmitLead(ctx context.Context, form *models.FormAttachment, lead integrations.Lead) (integrations.LeadReceipt, error)
}

// SlotSources returns the availability source for an agent.
type SlotSources func(agentID string) calendar.Source

type Options struct {
	Store   Store
	Opener  stream.Opener
	Tickets TicketSink
	Leads   LeadSink
	Slots   SlotSources
	Chat    config.ChatConfig
	Booking calendar.Window
	// Location is used for calendar days; UTC when nil.
	Location *time.Location
	AI       stream.AIConfig
	// SendLimiter is keyed by device; nil disables limiting.
	SendLimiter *limiter.Pool
}

// Engine holds what sessions share.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.Chat.HistoryLimit <= 0 {
		opts.Chat.HistoryLimit = 20
	}
	if opts.Chat.ErrorNotice == "" {
		opts.Chat.ErrorNotice = "I'm sorry, I encountered an error. Please try again."
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{opts: opts}
}

// NewFromConfig wires an engine from daemon configuration.
func NewFromConfig(cfg *config.Config, st Store, opener stream.Opener, integ *integrations.Client, sendLimiter *limiter.Pool) *Engine {
	opts := Options{
		Store:  st,
		Opener: opener,
		Chat:   cfg.Chat,
		Booking: calendar.Window{
			Offset:    cfg.Booking.StartOffset.Duration(),
			LookAhead: cfg.Booking.LookAhead.Duration(),
		},
		Location: cfg.Location(),
		AI: stream.AIConfig{
			Model:       cfg.Backend.Model,
			Temperature: cfg.Backend.Temperature,
			MaxTokens:   cfg.Backend.MaxTokens,
		},
		SendLimiter: sendLimiter,
	}
	if integ != nil {
		opts.Tickets = integ
		opts.Leads = integ
		opts.Slots = func(agentID string) calendar.Source { return integ.Slots(agentID) }
	}
	return New(opts)
}

// storeSubscriber adapts the store to the reconciler.
type storeSubscriber struct {
	st Store
}

func (s storeSubscriber) Subscribe(ctx context.Context, id string) (reconcile.Feed, error) {
	sub, err := s.st.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

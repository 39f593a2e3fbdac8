package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatstream/pkg/actions"
	"chatstream/pkg/calendar"
	"chatstream/pkg/directive"
	"chatstream/pkg/integrations"
	"chatstream/pkg/logger"
	"chatstream/pkg/metrics"
	"chatstream/pkg/models"
	"chatstream/pkg/reconcile"
	"chatstream/pkg/store"
	"chatstream/pkg/stream"
	"chatstream/pkg/telemetry"
)

// Callbacks receive session updates. They run synchronously and must not
// call back into the session.
type Callbacks struct {
	// OnChange gets a copy of the message list after each visible change.
	OnChange func(conversationID string, msgs []models.Message)
	// OnStatus gets backend status lines; an empty string clears the status.
	OnStatus func(status string)
}

// Session is one chat surface for an (agent, device) pair.
type Session struct {
	e        *Engine
	agentID  string
	deviceID string
	snap     *actions.Snapshot
	rec      *reconcile.Reconciler
	cb       Callbacks

	mu         sync.Mutex
	turnCancel context.CancelFunc
	turnDone   chan struct{}
	closed     bool
}

// OpenSession loads the agent's actions once and resumes the device's most
// recent conversation, if any.
func (e *Engine) OpenSession(ctx context.Context, agentID, deviceID string, cb Callbacks) (*Session, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	snap, err := actions.Load(ctx, e.opts.Store, agentID)
	if err != nil {
		logger.Warn("actions_unavailable", "agent", agentID, "error", err)
		snap = actions.NewSnapshot(agentID, nil)
	}
	s := &Session{
		e:        e,
		agentID:  agentID,
		deviceID: deviceID,
		snap:     snap,
		cb:       cb,
	}
	s.rec = reconcile.New(storeSubscriber{st: e.opts.Store}, cb.OnChange)

	if deviceID != "" {
		conv, err := e.opts.Store.FindConversation(ctx, agentID, deviceID)
		switch {
		case err == nil:
			if err := s.rec.SwitchConversation(ctx, conv.ID); err != nil {
				logger.Warn("resume_subscription_failed", "conversation", conv.ID, "error", err)
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			logger.Warn("resume_lookup_failed", "agent", agentID, "device", deviceID, "error", err)
		}
	}
	logger.Info("session_opened", "agent", agentID, "device", deviceID, "conversation", s.rec.ConversationID(), "actions", snap.Len())
	return s, nil
}

func (s *Session) AgentID() string { return s.agentID }

func (s *Session) ConversationID() string { return s.rec.ConversationID() }

func (s *Session) Phase() reconcile.Phase { return s.rec.Phase() }

func (s *Session) Messages() []models.Message { return s.rec.Messages() }

// Actions lists the active actions of the session's snapshot.
func (s *Session) Actions() []models.ActionConfig { return s.snap.Active() }

// Send runs one turn on the calling goroutine and returns the final
// assistant message. On a transport failure the returned message is the
// visible error notice and the error is the transport error. If the turn is
// interrupted by a conversation switch or Close, reconcile.ErrStaleTurn or
// the context error is returned.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	key := s.deviceID
	if key == "" {
		key = s.agentID
	}
	if !s.e.opts.SendLimiter.Allow(key) {
		return models.Message{}, ErrRateLimited
	}

	tctx, cancel := context.WithCancel(ctx)
	done, err := s.beginTurn(cancel)
	if err != nil {
		cancel()
		return models.Message{}, err
	}
	defer func() {
		cancel()
		s.endTurn(done)
	}()

	tr := telemetry.Track("turn.send")
	defer tr.Finish()
	tr.Set("agent", s.agentID)
	start := time.Now()

	history := s.history()
	user, err := s.rec.AppendOptimistic(models.Message{Role: models.RoleUser, Content: text})
	if err != nil {
		return models.Message{}, err
	}
	convID := s.ensureConversation(tctx)
	tr.Set("conversation", convID)
	tr.Mark("conversation")
	s.persist(tctx, convID, user)
	tr.Mark("persist_user")

	turn, err := s.rec.BeginStreaming(user.CorrelationID)
	if err != nil {
		return models.Message{}, err
	}

	req := stream.ChatRequest{
		Message:             text,
		ConversationHistory: history,
		AgentID:             s.agentID,
		AIConfig:            s.e.opts.AI,
	}
	if !models.IsLocalConversation(convID) {
		req.ConversationID = convID
	}
	st, err := s.e.opts.Opener.Open(tctx, req)
	if err != nil {
		return s.failTurn(tctx, turn, err)
	}
	defer st.Close()
	tr.Mark("stream_open")

	var (
		buf          strings.Builder
		frameMetrics map[string]any
	)
read:
	for {
		ev, err := st.Next()
		if errors.Is(err, io.EOF) {
			// a stream that ends without complete counts as complete
			break
		}
		if err != nil {
			return s.failTurn(tctx, turn, err)
		}
		switch ev.Type {
		case stream.EventStatus:
			s.status(ev.Message)
		case stream.EventContent:
			if err := s.rec.AppendDelta(turn, ev.Delta); err != nil {
				return models.Message{}, err
			}
			buf.WriteString(ev.Delta)
		case stream.EventComplete:
			frameMetrics = ev.Metrics
			break read
		case stream.EventError:
			if tctx.Err() != nil {
				return s.abortTurn(tctx, turn)
			}
			if terr := st.Err(); terr != nil {
				return s.failTurn(tctx, turn, terr)
			}
			return s.failTurn(tctx, turn, fmt.Errorf("backend error: %s", ev.Message))
		}
	}
	s.status("")
	tr.Mark("stream_done")
	if tctx.Err() != nil {
		return s.abortTurn(tctx, turn)
	}

	visible, att := s.resolve(buf.String())
	final, err := s.rec.Finalize(turn, visible, att)
	if err != nil {
		return models.Message{}, err
	}
	final.Metrics = frameMetrics
	tr.Mark("finalize")

	if att != nil && att.Kind == models.AttachmentTicket {
		final.Attachment = s.fileTicket(ctx, final.Key(), att)
		tr.Mark("ticket")
	}
	// the turn's own conversation, even if the session moved on meanwhile
	s.persist(ctx, convID, final)
	tr.Mark("persist_assistant")

	outcome := "committed"
	if final.Attachment != nil {
		outcome = "committed_with_attachment"
	}
	metricsTurn(outcome, start)
	return final, nil
}

// resolve extracts the directive from the complete text and maps it to an
// attachment. Failures only drop the attachment.
func (s *Session) resolve(text string) (string, *models.Attachment) {
	res := directive.Extract(text)
	if res.Dropped != nil {
		metrics.Directives.WithLabelValues(string(res.Dropped.Kind), "dropped").Inc()
		logger.Debug("directive_dropped", "kind", res.Dropped.Kind, "reason", res.Dropped.Reason, "field", res.Dropped.Field)
		return res.VisibleText, nil
	}
	if res.Directive == nil {
		return res.VisibleText, nil
	}
	att, err := actions.Resolve(res.Directive, s.snap)
	if err != nil {
		metrics.Directives.WithLabelValues(string(res.Directive.Kind), "unresolved").Inc()
		logger.Debug("directive_unresolved", "kind", res.Directive.Kind, "action", res.Directive.ActionID, "error", err)
		return res.VisibleText, nil
	}
	metrics.Directives.WithLabelValues(string(res.Directive.Kind), "resolved").Inc()
	return res.VisibleText, att
}

// fileTicket calls the ticket sink and records the outcome on a copy of the
// attachment, which replaces the one in the list.
func (s *Session) fileTicket(ctx context.Context, key string, att *models.Attachment) *models.Attachment {
	if s.e.opts.Tickets == nil {
		return att
	}
	out := *att
	ticket := *att.Ticket
	out.Ticket = &ticket

	res, err := s.e.opts.Tickets.CreateTicket(ctx, integrations.TicketRequestFor(s.agentID, att.Ticket))
	if err != nil {
		logger.Warn("ticket_create_failed", "agent", s.agentID, "action", att.ActionID, "error", err)
		ticket.Err = err.Error()
	} else {
		ticket.TicketID = res.TicketID
		ticket.State = res.Status
		logger.Info("ticket_created", "agent", s.agentID, "ticket", res.TicketID)
	}
	s.rec.UpdateAttachment(key, &out)
	return &out
}

func (s *Session) failTurn(ctx context.Context, turn *reconcile.Turn, cause error) (models.Message, error) {
	s.status("")
	if ctx.Err() != nil {
		return s.abortTurn(ctx, turn)
	}
	logger.Warn("turn_failed", "agent", s.agentID, "conversation", s.rec.ConversationID(), "error", cause)
	if errors.As(cause, new(*stream.TransportError)) {
		metrics.StreamTransportErrors.Inc()
	}
	msg, err := s.rec.Fail(turn, s.e.opts.Chat.ErrorNotice)
	if err != nil {
		return models.Message{}, err
	}
	metrics.Turns.WithLabelValues("failed").Inc()
	return msg, cause
}

func (s *Session) abortTurn(ctx context.Context, turn *reconcile.Turn) (models.Message, error) {
	s.status("")
	metrics.Turns.WithLabelValues("aborted").Inc()
	msg, kept, err := s.rec.Abort(turn, s.e.opts.Chat.PreservePartial)
	if err != nil {
		return models.Message{}, err
	}
	logger.Debug("turn_aborted", "conversation", s.rec.ConversationID(), "kept_partial", kept)
	if cerr := ctx.Err(); cerr != nil {
		return msg, cerr
	}
	return msg, context.Canceled
}

// ensureConversation returns the bound conversation, creating one on the
// first send. When the store is unavailable the turn continues under a
// local-only id.
func (s *Session) ensureConversation(ctx context.Context) string {
	if id := s.rec.ConversationID(); id != "" {
		return id
	}
	conv, err := s.e.opts.Store.CreateConversation(ctx, models.Conversation{AgentID: s.agentID, DeviceID: s.deviceID})
	if err != nil {
		id := models.LocalIDPrefix + uuid.NewString()
		logger.Warn("conversation_create_failed", "agent", s.agentID, "fallback", id, "error", err)
		metrics.LocalFallbacks.Inc()
		if berr := s.rec.Bind(ctx, id); berr != nil {
			logger.Warn("conversation_bind_failed", "conversation", id, "error", berr)
		}
		return s.rec.ConversationID()
	}
	if err := s.rec.Bind(ctx, conv.ID); err != nil {
		logger.Warn("conversation_bind_failed", "conversation", conv.ID, "error", err)
	}
	return conv.ID
}

// persist stores msg unless the conversation is local only. Failures leave
// the message pending in the list.
func (s *Session) persist(ctx context.Context, convID string, msg models.Message) {
	if convID == "" || models.IsLocalConversation(convID) {
		return
	}
	if _, err := s.e.opts.Store.AppendMessage(ctx, convID, msg); err != nil {
		logger.Warn("message_persist_failed", "conversation", convID, "correlation", msg.CorrelationID, "error", err)
	}
}

// history returns the recent turns sent to the backend as context.
func (s *Session) history() []stream.HistoryEntry {
	msgs := s.rec.Messages()
	out := make([]stream.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		switch m.Status {
		case models.StatusStreaming, models.StatusAborted:
			continue
		}
		if m.Content == "" {
			continue
		}
		if m.Role == models.RoleAssistant && s.e.opts.Chat.Welcome != "" && m.Content == s.e.opts.Chat.Welcome {
			continue
		}
		out = append(out, stream.HistoryEntry{Role: string(m.Role), Content: m.Content})
	}
	if n := s.e.opts.Chat.HistoryLimit; len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func (s *Session) status(msg string) {
	if s.cb.OnStatus != nil {
		s.cb.OnStatus(msg)
	}
}

func (s *Session) beginTurn(cancel context.CancelFunc) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.turnDone != nil {
		return nil, reconcile.ErrAlreadyStreaming
	}
	done := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = done
	return done, nil
}

func (s *Session) endTurn(done chan struct{}) {
	s.mu.Lock()
	if s.turnDone == done {
		s.turnDone = nil
		s.turnCancel = nil
	}
	s.mu.Unlock()
	close(done)
}

// cancelTurn interrupts the in-flight turn and waits until it has released
// its stream, or until ctx ends.
func (s *Session) cancelTurn(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.turnCancel, s.turnDone
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// SwitchConversation stops the current turn and subscription and shows id.
func (s *Session) SwitchConversation(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.cancelTurn(ctx)
	err := s.rec.SwitchConversation(ctx, id)
	logger.Info("conversation_switched", "agent", s.agentID, "conversation", s.rec.ConversationID())
	return err
}

// NewChat leaves the current conversation. The next Send creates a new one.
func (s *Session) NewChat(ctx context.Context) error {
	return s.SwitchConversation(ctx, "")
}

// Rename sets the conversation title.
func (s *Session) Rename(ctx context.Context, title string) error {
	id := s.rec.ConversationID()
	if id == "" || models.IsLocalConversation(id) {
		return fmt.Errorf("conversation %q is not stored", id)
	}
	_, err := s.e.opts.Store.UpdateConversationMetadata(ctx, id, models.ConversationUpdate{Title: &title})
	return err
}

// Calendar loads availability for a booking attachment.
func (s *Session) Calendar(ctx context.Context, booking *models.BookingAttachment) (*calendar.Picker, error) {
	if booking == nil {
		return nil, fmt.Errorf("no booking attachment")
	}
	if s.e.opts.Slots == nil {
		return nil, fmt.Errorf("availability source not configured")
	}
	return calendar.LoadPicker(ctx, s.e.opts.Slots(s.agentID), *booking, time.Now(), s.e.opts.Booking, s.e.opts.Location)
}

// SubmitLead sends values for the form attached to the message with the
// given key and returns the message to show on success.
func (s *Session) SubmitLead(ctx context.Context, messageKey string, values map[string]string) (string, error) {
	var form *models.FormAttachment
	var actionID string
	for _, m := range s.rec.Messages() {
		if m.Key() == messageKey && m.Attachment != nil && m.Attachment.Form != nil {
			form, actionID = m.Attachment.Form, m.Attachment.ActionID
			break
		}
	}
	if form == nil {
		return "", ErrNoForm
	}
	if s.e.opts.Leads == nil {
		return "", fmt.Errorf("lead sink not configured")
	}
	lead := integrations.Lead{AgentID: s.agentID, ActionID: actionID, Data: values}
	if id := s.rec.ConversationID(); !models.IsLocalConversation(id) {
		lead.ConversationID = id
	}
	if _, err := s.e.opts.Leads.SubmitLead(ctx, form, lead); err != nil {
		return "", err
	}
	if form.SuccessMessage != "" {
		return form.SuccessMessage, nil
	}
	return DefaultLeadSuccess, nil
}

// Close cancels the in-flight turn and drops the subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.cancelTurn(ctx)
	s.rec.Close()
	logger.Debug("session_closed", "agent", s.agentID)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func metricsTurn(outcome string, start time.Time) {
	metrics.Turns.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
}

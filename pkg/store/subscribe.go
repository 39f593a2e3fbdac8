package store

import (
	"context"
	"sync"

	"chatstream/pkg/logger"
	"chatstream/pkg/metrics"
	"chatstream/pkg/models"
	"chatstream/pkg/store/keys"
)

// Subscription delivers full ordered message snapshots for one conversation.
// Updates holds at most one pending snapshot; a newer one replaces it.
type Subscription struct {
	convID  string
	updates chan []models.Message
	done    chan struct{}
	hub     *hub

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *Subscription) Updates() <-chan []models.Message { return s.updates }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended; nil after Close or store shutdown.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) ConversationID() string { return s.convID }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.end(nil)
}

func (s *Subscription) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

// offer replaces any undelivered snapshot with msgs.
func (s *Subscription) offer(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- msgs
}

type hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *hub) add(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.convID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.convID] = set
	}
	set[s] = struct{}{}
	metrics.Subscribers.Inc()
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.convID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	metrics.Subscribers.Dec()
	if len(set) == 0 {
		delete(h.subs, s.convID)
	}
}

func (h *hub) publish(convID string, msgs []models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[convID] {
		// each subscriber gets its own copy
		s.offer(cloneMessages(msgs))
	}
}

func (h *hub) closeConversation(convID string, err error) {
	h.mu.Lock()
	set := h.subs[convID]
	delete(h.subs, convID)
	h.mu.Unlock()
	for s := range set {
		metrics.Subscribers.Dec()
		s.end(err)
	}
}

func (h *hub) closeAll(err error) {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for s := range set {
			metrics.Subscribers.Dec()
			s.end(err)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Subscribe starts a subscription to convID. The current snapshot is queued
// before Subscribe returns. The subscription ends when ctx is done.
func (s *DB) Subscribe(ctx context.Context, convID string) (*Subscription, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := keys.ValidateID("conversation", convID); err != nil {
		return nil, err
	}

	lock := s.lockFor(convID)
	lock.Lock()
	if _, err := s.getRaw(keys.GenConversationKey(convID)); err != nil {
		lock.Unlock()
		return nil, err
	}
	msgs, err := s.listMessages(convID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	sub := &Subscription{
		convID:  convID,
		updates: make(chan []models.Message, 1),
		done:    make(chan struct{}),
		hub:     s.hub,
	}
	sub.offer(msgs)
	// registered under the conversation lock so no append is missed between
	// the initial read and the first publish
	s.hub.add(sub)
	lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	logger.Debug("subscription_started", "conversation", convID, "messages", len(msgs))
	return sub, nil
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

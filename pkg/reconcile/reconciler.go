// Package reconcile owns the message list of the conversation on screen. It
// merges optimistic local messages with full snapshots pushed by the store
// and manages the single streaming assistant message of a turn.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatstream/pkg/logger"
	"chatstream/pkg/metrics"
	"chatstream/pkg/models"
)

var (
	ErrAlreadyStreaming = errors.New("a response is already streaming")
	// ErrStaleTurn is returned for a turn started before the conversation
	// changed or the reconciler was closed.
	ErrStaleTurn          = errors.New("turn no longer current")
	ErrRemoteSubscription = errors.New("remote subscription failed")
	ErrClosed             = errors.New("reconciler closed")
	ErrAlreadyBound       = errors.New("conversation already bound")
)

type Phase string

const (
	PhaseEmpty                Phase = "empty"
	PhaseAwaitingFirstMessage Phase = "awaiting_first_message"
	PhaseActive               Phase = "active"
)

// Feed is a live subscription to one conversation's snapshots.
type Feed interface {
	Updates() <-chan []models.Message
	Done() <-chan struct{}
	Err() error
	Close()
}

type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (Feed, error)
}

// Turn identifies the streaming assistant message of one request.
type Turn struct {
	gen     uint64
	key     string
	replyTo string
}

// Key is the correlation id of the streaming message.
func (t *Turn) Key() string { return t.key }

// ChangeFunc receives the conversation id and a copy of the list after a
// visible change. It runs with the reconciler locked and must not call back
// into it.
type ChangeFunc func(conversationID string, msgs []models.Message)

type Reconciler struct {
	sub      Subscriber
	onChange ChangeFunc

	// switchMu serializes subscription changes.
	switchMu sync.Mutex

	mu       sync.Mutex
	convID   string
	msgs     []models.Message
	gen      uint64
	turn     *Turn
	stopPump func()
	closed   bool
}

// New returns an empty reconciler. sub may be nil, in which case every
// conversation is local only.
func New(sub Subscriber, onChange ChangeFunc) *Reconciler {
	return &Reconciler{sub: sub, onChange: onChange}
}

func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.convID != "":
		return PhaseActive
	case len(r.msgs) > 0:
		return PhaseAwaitingFirstMessage
	default:
		return PhaseEmpty
	}
}

func (r *Reconciler) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convID
}

// Messages returns a copy of the current list.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneList(r.msgs)
}

// Streaming reports whether a turn is in progress.
func (r *Reconciler) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn != nil
}

// AppendOptimistic inserts msg as pending and returns the stored copy. A
// correlation id and timestamp are assigned when missing.
func (r *Reconciler) AppendOptimistic(msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.Message{}, ErrClosed
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	if msg.TS == 0 {
		msg.TS = time.Now().UnixNano()
	}
	msg.ID = ""
	msg.ConversationID = r.convID
	msg.Status = models.StatusPending
	r.msgs = append(r.msgs, msg)
	r.notifyLocked()
	return msg, nil
}

// OnRemoteSnapshot merges a full snapshot of conversationID. Snapshots for
// any other conversation are ignored.
func (r *Reconciler) OnRemoteSnapshot(conversationID string, remote []models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(r.gen, conversationID, remote)
}

func (r *Reconciler) applyLocked(gen uint64, conversationID string, remote []models.Message) bool {
	if r.closed || gen != r.gen || conversationID == "" || conversationID != r.convID {
		return false
	}
	merged, changed := Merge(r.msgs, remote)
	metrics.Merges.WithLabelValues(fmt.Sprint(changed)).Inc()
	if !changed {
		return false
	}
	r.msgs = merged
	r.notifyLocked()
	return true
}

// BeginStreaming adds an empty streaming assistant message replying to the
// user message with correlation id replyTo.
func (r *Reconciler) BeginStreaming(replyTo string) (*Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.turn != nil {
		return nil, ErrAlreadyStreaming
	}
	t := &Turn{gen: r.gen, key: uuid.NewString(), replyTo: replyTo}
	r.msgs = append(r.msgs, models.Message{
		CorrelationID:  t.key,
		ConversationID: r.convID,
		Role:           models.RoleAssistant,
		TS:             time.Now().UnixNano(),
		ReplyTo:        replyTo,
		Status:         models.StatusStreaming,
	})
	r.turn = t
	r.notifyLocked()
	return t, nil
}

// AppendDelta appends text to the streaming message.
func (r *Reconciler) AppendDelta(t *Turn, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, err := r.turnIndexLocked(t)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	r.msgs[i].Content += text
	r.notifyLocked()
	return nil
}

// Finalize commits the streaming message with its final visible text and
// attachment and ends the turn. The returned copy is what should be
// persisted.
func (r *Reconciler) Finalize(t *Turn, text string, att *models.Attachment) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, err := r.turnIndexLocked(t)
	if err != nil {
		return models.Message{}, err
	}
	m := &r.msgs[i]
	m.Content = text
	m.Attachment = att
	m.Status = models.StatusCommitted
	m.ConversationID = r.convID
	r.turn = nil
	r.notifyLocked()
	return *m, nil
}

// Abort ends the turn without committing. With keepPartial and some text
// received, the message stays with status aborted; otherwise it is removed.
func (r *Reconciler) Abort(t *Turn, keepPartial bool) (models.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, err := r.turnIndexLocked(t)
	if err != nil {
		return models.Message{}, false, err
	}
	r.turn = nil
	m := r.msgs[i]
	if keepPartial && m.Content != "" {
		r.msgs[i].Status = models.StatusAborted
		r.notifyLocked()
		return r.msgs[i], true, nil
	}
	r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
	r.notifyLocked()
	return m, false, nil
}

// Fail replaces the streaming message with a visible notice, marked aborted.
func (r *Reconciler) Fail(t *Turn, notice string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, err := r.turnIndexLocked(t)
	if err != nil {
		return models.Message{}, err
	}
	r.turn = nil
	r.msgs[i].Content = notice
	r.msgs[i].Attachment = nil
	r.msgs[i].Status = models.StatusAborted
	r.notifyLocked()
	return r.msgs[i], nil
}

// UpdateAttachment replaces the attachment of a message already in the list.
func (r *Reconciler) UpdateAttachment(key string, att *models.Attachment) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.msgs {
		if r.msgs[i].Key() == key {
			r.msgs[i].Attachment = att
			r.notifyLocked()
			return true
		}
	}
	return false
}

func (r *Reconciler) turnIndexLocked(t *Turn) (int, error) {
	if r.closed {
		return -1, ErrClosed
	}
	if t == nil || t != r.turn || t.gen != r.gen {
		return -1, ErrStaleTurn
	}
	for i := range r.msgs {
		if r.msgs[i].CorrelationID == t.key {
			return i, nil
		}
	}
	return -1, ErrStaleTurn
}

// SwitchConversation drops all local state, including any streaming turn,
// and subscribes to id. The previous subscription is fully stopped before
// the new one starts. An empty id leaves the reconciler empty. If the
// subscription fails the reconciler continues under a local-only id and the
// returned error wraps ErrRemoteSubscription.
func (r *Reconciler) SwitchConversation(ctx context.Context, id string) error {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.gen++
	r.turn = nil
	r.msgs = nil
	r.convID = id
	stop := r.stopPump
	r.stopPump = nil
	r.notifyLocked()
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if id == "" || models.IsLocalConversation(id) {
		return nil
	}
	return r.subscribe(ctx, id)
}

// Bind attaches the first conversation to a reconciler still in the Empty
// or AwaitingFirstMessage phase. Optimistic messages and the streaming turn
// are kept.
func (r *Reconciler) Bind(ctx context.Context, id string) error {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.convID != "" {
		r.mu.Unlock()
		return ErrAlreadyBound
	}
	r.convID = id
	for i := range r.msgs {
		r.msgs[i].ConversationID = id
	}
	r.mu.Unlock()

	if models.IsLocalConversation(id) {
		return nil
	}
	return r.subscribe(ctx, id)
}

// UseLocalOnly stops remote updates and moves the current list under a
// synthesized local id, which is returned.
func (r *Reconciler) UseLocalOnly() string {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	r.mu.Lock()
	stop := r.stopPump
	r.stopPump = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.goLocalLocked("requested")
}

func (r *Reconciler) goLocalLocked(reason string) string {
	prev := r.convID
	r.convID = models.LocalIDPrefix + uuid.NewString()
	for i := range r.msgs {
		r.msgs[i].ConversationID = r.convID
	}
	metrics.LocalFallbacks.Inc()
	logger.Warn("conversation_local_only", "previous", prev, "conversation", r.convID, "reason", reason)
	r.notifyLocked()
	return r.convID
}

// subscribe must be called with switchMu held.
func (r *Reconciler) subscribe(ctx context.Context, id string) error {
	if r.sub == nil {
		r.mu.Lock()
		r.goLocalLocked("no subscriber")
		r.mu.Unlock()
		return fmt.Errorf("%w: no store", ErrRemoteSubscription)
	}

	pctx, cancel := context.WithCancel(context.Background())
	feed, err := r.sub.Subscribe(pctx, id)
	if err == nil && ctx.Err() != nil {
		feed.Close()
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		r.mu.Lock()
		if !r.closed && r.convID == id {
			r.goLocalLocked(err.Error())
		}
		r.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrRemoteSubscription, id, err)
	}

	r.mu.Lock()
	if r.closed || r.convID != id {
		r.mu.Unlock()
		cancel()
		feed.Close()
		return nil
	}
	done := make(chan struct{})
	gen := r.gen
	r.stopPump = func() {
		cancel()
		<-done
	}
	r.mu.Unlock()

	go r.pump(pctx, gen, id, feed, done)
	logger.Debug("conversation_subscribed", "conversation", id)
	return nil
}

func (r *Reconciler) pump(ctx context.Context, gen uint64, id string, feed Feed, done chan struct{}) {
	defer close(done)
	defer feed.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-feed.Updates():
			r.mu.Lock()
			r.applyLocked(gen, id, snap)
			r.mu.Unlock()
		case <-feed.Done():
			err := feed.Err()
			if err == nil {
				return
			}
			r.mu.Lock()
			if !r.closed && gen == r.gen && r.convID == id {
				r.stopPump = nil
				r.goLocalLocked(err.Error())
			}
			r.mu.Unlock()
			return
		}
	}
}

// Close stops the subscription and invalidates any turn.
func (r *Reconciler) Close() {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	r.turn = nil
	stop := r.stopPump
	r.stopPump = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (r *Reconciler) notifyLocked() {
	if r.onChange != nil {
		r.onChange(r.convID, cloneList(r.msgs))
	}
}

func cloneList(msgs []models.Message) []models.Message {
	if msgs == nil {
		return nil
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"chatstream/pkg/calendar"
	"chatstream/pkg/models"
)

var (
	userLabel      = color.New(color.FgGreen, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	dim            = color.New(color.Faint).SprintFunc()
	warn           = color.New(color.FgYellow).SprintFunc()
	failure        = color.New(color.FgRed).SprintFunc()
)

// renderer prints the message list incrementally. Assistant text is echoed
// as it streams; a trailing unclosed '[' is held back so directive markers
// are not printed half way.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	done    map[string]bool
	open    string
	last    []models.Message
	// inTurn is set while a Send is running. Outside a turn, committed
	// messages come from switching or remote writers and are only recorded.
	inTurn bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, printed: map[string]string{}, done: map[string]bool{}}
}

// seen marks msgs as already on screen so a resumed conversation is not
// replayed by the first update.
func (r *renderer) seen(msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		if m.Status != models.StatusStreaming {
			r.done[m.Key()] = true
		}
	}
}

func (r *renderer) onChange(_ string, msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = msgs
	for _, m := range msgs {
		if m.Role != models.RoleAssistant || r.done[m.Key()] {
			continue
		}
		key := m.Key()
		if m.Status == models.StatusStreaming {
			r.stream(key, m.Content)
			continue
		}
		if !r.inTurn {
			if _, streamed := r.printed[key]; !streamed {
				r.done[key] = true
				continue
			}
		}
		r.finish(key, m)
	}
}

func (r *renderer) beginTurn() {
	r.mu.Lock()
	r.inTurn = true
	r.mu.Unlock()
}

// endTurn prints final if no update carried it, which happens when the
// turn's conversation was left before it committed.
func (r *renderer) endTurn(final models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inTurn = false
	if final.Role == models.RoleAssistant && final.Content != "" && !r.done[final.Key()] {
		r.finish(final.Key(), final)
	}
}

func (r *renderer) stream(key, content string) {
	if r.open != key {
		fmt.Fprintf(r.out, "%s ", assistantLabel("assistant>"))
		r.open = key
	}
	show := content
	if i := strings.LastIndex(show, "["); i >= 0 && !strings.Contains(show[i:], "]") {
		show = show[:i]
	}
	prev := r.printed[key]
	if strings.HasPrefix(show, prev) && len(show) > len(prev) {
		fmt.Fprint(r.out, show[len(prev):])
		r.printed[key] = show
	}
}

func (r *renderer) finish(key string, m models.Message) {
	r.done[key] = true
	prev, streamed := r.printed[key]
	delete(r.printed, key)
	if r.open == key {
		r.open = ""
	}
	switch {
	case !streamed:
		fmt.Fprintf(r.out, "%s %s\n", assistantLabel("assistant>"), m.Content)
	case strings.TrimSpace(prev) == m.Content:
		fmt.Fprintln(r.out)
	default:
		// the streamed text carried a marker that has since been stripped
		fmt.Fprintf(r.out, "\n%s %s\n", dim("(final)"), m.Content)
	}
	if m.Status == models.StatusAborted {
		fmt.Fprintln(r.out, dim("(interrupted)"))
	}
	if m.Attachment != nil {
		printAttachment(r.out, m.Key(), m.Attachment)
	}
}

func (r *renderer) status(s string) {
	if s == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s\n", dim("… "+s))
}

// lastAttachment returns the newest message carrying an attachment of kind.
func (r *renderer) lastAttachment(kind models.AttachmentKind) (models.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.last) - 1; i >= 0; i-- {
		m := r.last[i]
		if m.Attachment != nil && m.Attachment.Kind == kind {
			return m, true
		}
	}
	return models.Message{}, false
}

func printAttachment(out io.Writer, key string, a *models.Attachment) {
	switch a.Kind {
	case models.AttachmentButton:
		fmt.Fprintf(out, "  [%s] %s\n", a.Button.Text, a.Button.URL)
	case models.AttachmentForm:
		fmt.Fprintf(out, "  form %q:", a.Form.Name)
		for _, f := range a.Form.Fields {
			name := f.Name
			if f.Required {
				name += "*"
			}
			fmt.Fprintf(out, " %s", name)
		}
		fmt.Fprintf(out, "\n  %s\n", dim("submit with /lead field=value ... ("+key+")"))
	case models.AttachmentBooking:
		name := a.Booking.EventName
		if name == "" {
			name = a.Booking.EventRef
		}
		fmt.Fprintf(out, "  booking: %s %s\n", name, dim("(pick a slot with /book)"))
	case models.AttachmentTicket:
		t := a.Ticket
		switch {
		case t.Err != "":
			fmt.Fprintf(out, "  %s %s\n", failure("ticket failed:"), t.Err)
		case t.TicketID != "":
			fmt.Fprintf(out, "  ticket %s created for %s\n", t.TicketID, t.Email)
		default:
			fmt.Fprintf(out, "  ticket requested for %s\n", t.Email)
		}
	}
}

// printGrid draws a Sunday-first month. Selectable days are marked with '*'.
func printGrid(out io.Writer, month time.Time, grid [calendar.GridCells]calendar.Day) {
	fmt.Fprintf(out, "%s\n", month.Format("January 2006"))
	fmt.Fprintln(out, " Su  Mo  Tu  We  Th  Fr  Sa")
	for i, d := range grid {
		cell := "    "
		if d.IsCurrentMonth {
			mark := " "
			if d.Selectable {
				mark = "*"
			}
			cell = fmt.Sprintf("%3d%s", d.Date.Day(), mark)
		}
		fmt.Fprint(out, cell)
		if i%7 == 6 {
			fmt.Fprintln(out)
		}
	}
}

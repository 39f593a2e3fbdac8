package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatstream/pkg/calendar"
	"chatstream/pkg/engine"
	"chatstream/pkg/integrations"
	"chatstream/pkg/limiter"
	"chatstream/pkg/models"
	"chatstream/pkg/stream"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `commands:
  /new              start a new conversation
  /switch <id>      show another conversation
  /rename <title>   rename the current conversation
  /book             pick a slot for the last booking attachment
  /lead k=v ...     submit the last form attachment
  /actions          list active actions
  /quit             leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, err := requireAgent()
		if err != nil {
			return err
		}
		cfg, err := profile.Config()
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}

		integ := integrations.New(cfg.Integrations.URL, cfg.Integrations.WorkspaceID, cfg.Integrations.RequestTimeout.Duration())
		sendLimiter := limiter.New(cfg.Limits.SendRPS, cfg.Limits.SendBurst, cfg.Limits.IdleTTL.Duration())
		defer sendLimiter.Shutdown()

		eng := engine.NewFromConfig(cfg, db, stream.NewClient(cfg.StreamURL(), cfg.Backend.Timeout.Duration()), integ, sendLimiter)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		// the first interrupt ends the session; a second one exits while stdin blocks
		go func() {
			<-ctx.Done()
			stop()
		}()

		out := cmd.OutOrStdout()
		r := newRenderer(out)
		sess, err := eng.OpenSession(ctx, agentID, profile.DeviceID, engine.Callbacks{
			OnChange: r.onChange,
			OnStatus: r.status,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		rp := &repl{sess: sess, r: r, out: out, in: bufio.NewScanner(os.Stdin), prompt: interactive, loc: cfg.Location()}
		rp.greet()
		return rp.run(ctx)
	},
}

type repl struct {
	sess   *engine.Session
	r      *renderer
	out    io.Writer
	in     *bufio.Scanner
	prompt bool
	loc    *time.Location
}

func (rp *repl) greet() {
	msgs := rp.sess.Messages()
	rp.r.seen(msgs)
	if id := rp.sess.ConversationID(); id != "" {
		fmt.Fprintf(rp.out, "%s %s (%d messages)\n", dim("resumed"), id, len(msgs))
		for _, m := range msgs {
			rp.printStored(m)
		}
	}
	fmt.Fprintln(rp.out, dim("type /help for commands"))
}

func (rp *repl) printStored(m models.Message) {
	label := assistantLabel("assistant>")
	if m.Role == models.RoleUser {
		label = userLabel("you>")
	}
	ts := ""
	if m.TS > 0 {
		ts = time.Unix(0, m.TS).In(rp.loc).Format("15:04") + " "
	}
	fmt.Fprintf(rp.out, "%s%s %s\n", dim(ts), label, m.Content)
}

func (rp *repl) readLine(prompt string) (string, bool) {
	if rp.prompt {
		fmt.Fprint(rp.out, prompt)
	}
	if !rp.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(rp.in.Text()), true
}

func (rp *repl) run(ctx context.Context) error {
	for ctx.Err() == nil {
		line, ok := rp.readLine(userLabel("you>") + " ")
		if !ok {
			return rp.in.Err()
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := rp.command(ctx, line)
			if err != nil {
				fmt.Fprintf(rp.out, "%s %v\n", failure("error:"), err)
			}
			if quit {
				return nil
			}
			continue
		}
		rp.r.beginTurn()
		final, err := rp.sess.Send(ctx, line)
		rp.r.endTurn(final)
		if err != nil {
			rp.sendError(err)
		}
	}
	return nil
}

func (rp *repl) sendError(err error) {
	var te *stream.TransportError
	switch {
	case errors.As(err, &te):
		// the error notice was already rendered as the assistant reply
		fmt.Fprintf(rp.out, "%s\n", dim(te.Error()))
	case errors.Is(err, engine.ErrRateLimited):
		fmt.Fprintf(rp.out, "%s\n", warn(err.Error()))
	case errors.Is(err, context.Canceled):
	default:
		fmt.Fprintf(rp.out, "%s %v\n", failure("error:"), err)
	}
}

func (rp *repl) command(ctx context.Context, line string) (quit bool, err error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(rp.out, chatHelp)
	case "/new":
		err = rp.sess.NewChat(ctx)
		if err == nil {
			fmt.Fprintln(rp.out, dim("new conversation"))
		}
	case "/switch":
		if rest == "" {
			return false, fmt.Errorf("usage: /switch <conversation-id>")
		}
		err = rp.sess.SwitchConversation(ctx, rest)
		if err == nil {
			msgs := rp.sess.Messages()
			rp.r.seen(msgs)
			for _, m := range msgs {
				rp.printStored(m)
			}
		}
	case "/rename":
		if rest == "" {
			return false, fmt.Errorf("usage: /rename <title>")
		}
		err = rp.sess.Rename(ctx, rest)
	case "/actions":
		for _, a := range rp.sess.Actions() {
			fmt.Fprintf(rp.out, "  %s  %s  %s\n", a.ID, a.Type, a.Name)
		}
	case "/lead":
		err = rp.lead(ctx, rest)
	case "/book":
		err = rp.book(ctx)
	default:
		err = fmt.Errorf("unknown command %s", name)
	}
	return false, err
}

func (rp *repl) lead(ctx context.Context, rest string) error {
	m, ok := rp.r.lastAttachment(models.AttachmentForm)
	if !ok {
		return engine.ErrNoForm
	}
	values := map[string]string{}
	for _, kv := range strings.Fields(rest) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", kv)
		}
		values[k] = v
	}
	msg, err := rp.sess.SubmitLead(ctx, m.Key(), values)
	if err != nil {
		return err
	}
	fmt.Fprintln(rp.out, msg)
	return nil
}

// book walks the picker: month navigation with < and >, a day number to
// select a date, then one of the offered times.
func (rp *repl) book(ctx context.Context) error {
	m, ok := rp.r.lastAttachment(models.AttachmentBooking)
	if !ok {
		return fmt.Errorf("no booking attachment in this conversation")
	}
	p, err := rp.sess.Calendar(ctx, m.Attachment.Booking)
	if err != nil {
		return err
	}
	if len(p.Slots()) == 0 {
		fmt.Fprintln(rp.out, warn("no open slots in the booking window"))
		return nil
	}
	for {
		printGrid(rp.out, p.Month(), p.Grid())
		line, ok := rp.readLine(dim("day, < or > (empty to cancel): "))
		if !ok || line == "" {
			return nil
		}
		switch line {
		case "<":
			p.PrevMonth()
			continue
		case ">":
			p.NextMonth()
			continue
		}
		var day int
		if _, err := fmt.Sscanf(line, "%d", &day); err != nil {
			fmt.Fprintln(rp.out, warn("enter a day number"))
			continue
		}
		mo := p.Month()
		if err := p.SelectDate(time.Date(mo.Year(), mo.Month(), day, 0, 0, 0, 0, mo.Location())); err != nil {
			fmt.Fprintln(rp.out, warn(err.Error()))
			continue
		}
		break
	}
	return rp.pickTime(p)
}

func (rp *repl) pickTime(p *calendar.Picker) error {
	times := p.Times()
	for {
		fmt.Fprintf(rp.out, "times: %s\n", strings.Join(times, ", "))
		line, ok := rp.readLine(dim("time (empty to cancel): "))
		if !ok || line == "" {
			return nil
		}
		if err := p.SelectTime(line); err != nil {
			fmt.Fprintln(rp.out, warn(err.Error()))
			continue
		}
		link, err := p.BookingURL()
		if err != nil {
			return err
		}
		fmt.Fprintf(rp.out, "book here: %s\n", link)
		return nil
	}
}

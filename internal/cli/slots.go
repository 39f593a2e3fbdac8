package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatstream/pkg/calendar"
	"chatstream/pkg/integrations"
	"chatstream/pkg/models"
)

var slotsMonths int

func init() {
	slotsCmd.Flags().IntVar(&slotsMonths, "months", 1, "number of months to print")
	rootCmd.AddCommand(slotsCmd)
}

var slotsCmd = &cobra.Command{
	Use:   "slots <event-ref>",
	Short: "Print open booking slots for an event as a month grid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, err := requireAgent()
		if err != nil {
			return err
		}
		cfg, err := profile.Config()
		if err != nil {
			return err
		}
		integ := integrations.New(cfg.Integrations.URL, cfg.Integrations.WorkspaceID, cfg.Integrations.RequestTimeout.Duration())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Integrations.RequestTimeout.Duration())
		defer cancel()

		loc := cfg.Location()
		w := calendar.Window{Offset: cfg.Booking.StartOffset.Duration(), LookAhead: cfg.Booking.LookAhead.Duration()}
		p, err := calendar.LoadPicker(ctx, integ.Slots(agentID), models.BookingAttachment{EventRef: args[0]}, time.Now(), w, loc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d open slots (%s)\n", len(p.Slots()), loc)
		for i := 0; i < slotsMonths; i++ {
			printGrid(out, p.Month(), p.Grid())
			fmt.Fprintln(out)
			p.NextMonth()
		}
		return nil
	},
}

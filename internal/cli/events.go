package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harun/vigil/pkg/notification"
	"github.com/spf13/cobra"
)

var (
	eventAt          string
	eventIn          time.Duration
	eventCron        string
	eventTimezone    string
	eventDescription string
	eventTool        string
	eventArgs        string
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"event"},
	Short:   "Manage scheduled events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending scheduled events",
	Args:  cobra.NoArgs,
	RunE:  runEventsList,
}

var eventsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule an event",
	Long: `Schedule an event that becomes a notification when it fires.

Exactly one of --at, --in or --cron selects when it fires. A cron event
fires once, at the next time the expression matches.

Examples:
  vigil events add --in 2h --description "Check the oven"
  vigil events add --at 2026-01-02T09:00:00Z --description "Rebalance" --tool trader --args '["buy","ETH",1]'
  vigil events add --cron "0 9 * * MON" --tz Europe/Berlin --description "Weekly review"`,
	Args: cobra.NoArgs,
	RunE: runEventsAdd,
}

var eventsCancelCmd = &cobra.Command{
	Use:     "cancel <id>",
	Aliases: []string{"rm"},
	Short:   "Cancel a scheduled event",
	Args:    cobra.ExactArgs(1),
	RunE:    runEventsCancel,
}

func init() {
	eventsAddCmd.Flags().StringVar(&eventAt, "at", "", "fire time (RFC3339)")
	eventsAddCmd.Flags().DurationVar(&eventIn, "in", 0, "fire after this duration (e.g. 30m, 2h)")
	eventsAddCmd.Flags().StringVar(&eventCron, "cron", "", "cron expression for the fire time")
	eventsAddCmd.Flags().StringVar(&eventTimezone, "tz", "", "IANA timezone for --cron (default UTC)")
	eventsAddCmd.Flags().StringVarP(&eventDescription, "description", "d", "", "what the notification says")
	eventsAddCmd.Flags().StringVar(&eventTool, "tool", "", "reactive tool to propose when the event fires")
	eventsAddCmd.Flags().StringVar(&eventArgs, "args", "", "JSON array of arguments for --tool")
	_ = eventsAddCmd.MarkFlagRequired("description")

	eventsCmd.AddCommand(eventsListCmd, eventsAddCmd, eventsCancelCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsList(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	events, err := client.ListScheduledEvents(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), events, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tFIRES\tCRON\tPROPOSED\tDESCRIPTION")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.ID, formatTime(&e.TimeOfOccur), orDash(e.Cron),
				proposal(e.ToolToCall, e.Arguments), truncate(e.Description, 60))
		}
	})
}

// eventParams builds the request from the add flags
func eventParams(now time.Time) (notification.EventParams, error) {
	p := notification.EventParams{
		Description: eventDescription,
		ToolToCall:  eventTool,
	}

	chosen := 0
	if eventAt != "" {
		chosen++
	}
	if eventIn != 0 {
		chosen++
	}
	if eventCron != "" {
		chosen++
	}
	if chosen != 1 {
		return p, fmt.Errorf("exactly one of --at, --in or --cron is required")
	}
	if eventTimezone != "" && eventCron == "" {
		return p, fmt.Errorf("--tz only applies to --cron")
	}

	switch {
	case eventAt != "":
		t, err := time.Parse(time.RFC3339, eventAt)
		if err != nil {
			return p, fmt.Errorf("invalid --at: %w", err)
		}
		p.TimeOfOccur = t
	case eventIn != 0:
		if eventIn < 0 {
			return p, fmt.Errorf("--in must be positive")
		}
		p.TimeOfOccur = now.Add(eventIn)
	default:
		p.Cron = eventCron
		p.Timezone = eventTimezone
	}

	if eventArgs != "" {
		if eventTool == "" {
			return p, fmt.Errorf("--args requires --tool")
		}
		var args []any
		if err := json.NewDecoder(strings.NewReader(eventArgs)).Decode(&args); err != nil {
			return p, fmt.Errorf("--args must be a JSON array: %w", err)
		}
		p.Arguments = args
	}

	return p, nil
}

func runEventsAdd(cmd *cobra.Command, args []string) error {
	p, err := eventParams(time.Now())
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	e, err := client.ScheduleEvent(cmd.Context(), p)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), e, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Scheduled %s for %s\n", e.ID, formatTime(&e.TimeOfOccur))
	})
}

func runEventsCancel(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.CancelScheduledEvent(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
	return nil
}

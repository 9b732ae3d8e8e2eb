package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/vigil/pkg/notification"
	"github.com/spf13/cobra"
)

var (
	notifState string
	notifTool  string
	notifLimit int
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif", "n"},
	Short:   "List and respond to notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runNotificationsList,
}

var notificationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single notification",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationsShow,
}

var notificationsRespondCmd = &cobra.Command{
	Use:   "respond <id> <approve|reject|dismiss>",
	Short: "Respond to a pending notification",
	Long: `Respond to a pending notification. Approving a notification that
proposes an action executes it immediately and records the result.`,
	Args: cobra.ExactArgs(2),
	RunE: runNotificationsRespond,
}

func init() {
	notificationsListCmd.Flags().StringVar(&notifState, "state", "", "filter by state (pending, approved, rejected, dismissed)")
	notificationsListCmd.Flags().StringVar(&notifTool, "tool", "", "filter by source tool")
	notificationsListCmd.Flags().IntVar(&notifLimit, "limit", 0, "show only the newest N notifications")

	notificationsCmd.AddCommand(notificationsListCmd, notificationsShowCmd, notificationsRespondCmd)
	rootCmd.AddCommand(notificationsCmd)
}

func runNotificationsList(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	list, err := client.ListNotifications(cmd.Context(), NotificationFilter{
		State: notifState,
		Tool:  notifTool,
		Limit: notifLimit,
	})
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), list, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tSTATE\tSOURCE\tOCCURRED\tPROPOSED\tDESCRIPTION")
		for _, n := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				n.ID, n.State, orDash(n.SourceTool), formatTime(&n.TimeOfOccur),
				proposal(n.ToolToCall, n.Arguments), truncate(n.Description, 60))
		}
	})
}

func runNotificationsShow(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	n, err := client.GetNotification(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), n, func(tw *tabwriter.Writer) {
		printNotification(tw, n)
	})
}

func runNotificationsRespond(cmd *cobra.Command, args []string) error {
	action := notification.Action(strings.ToLower(args[1]))
	switch action {
	case notification.ActionApprove, notification.ActionReject, notification.ActionDismiss:
	default:
		return fmt.Errorf("unknown action %q (must be: approve, reject, dismiss)", args[1])
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	n, err := client.Respond(cmd.Context(), args[0], action)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), n, func(tw *tabwriter.Writer) {
		printNotification(tw, n)
	})
}

func printNotification(tw *tabwriter.Writer, n notification.Notification) {
	fmt.Fprintf(tw, "ID:\t%s\n", n.ID)
	fmt.Fprintf(tw, "State:\t%s\n", n.State)
	fmt.Fprintf(tw, "Source:\t%s\n", orDash(n.SourceTool))
	fmt.Fprintf(tw, "Occurred:\t%s\n", formatTime(&n.TimeOfOccur))
	fmt.Fprintf(tw, "Description:\t%s\n", n.Description)
	fmt.Fprintf(tw, "Proposed:\t%s\n", proposal(n.ToolToCall, n.Arguments))
	if n.RespondedAt != nil {
		fmt.Fprintf(tw, "Responded:\t%s\n", formatTime(n.RespondedAt))
	}
	if n.Execution != nil {
		fmt.Fprintf(tw, "Execution:\t%s\n", n.Execution.Status)
		if n.Execution.Message != "" {
			fmt.Fprintf(tw, "Message:\t%s\n", n.Execution.Message)
		}
		for k, v := range n.Execution.Result {
			fmt.Fprintf(tw, "  %s:\t%v\n", k, v)
		}
	}
}

func proposal(toolName string, args []any) string {
	if toolName == "" {
		return "-"
	}
	return toolName + " " + formatArgs(args)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

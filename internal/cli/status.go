package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/harun/vigil/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the current status of the Vigil daemon service. When the daemon
is running its API is queried for tool and notification counts.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is what status prints
type statusReport struct {
	Status string  `json:"status"`
	PID    int     `json:"pid,omitempty"`
	Uptime string  `json:"uptime,omitempty"`
	Health *Health `json:"health,omitempty"`
	Error  string  `json:"api_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile, err := getPIDFilePath()
	if err != nil {
		return err
	}

	report := statusReport{Status: "stopped"}

	if daemon.IsRunning(pidFile) {
		report.Status = "running"

		pid, err := daemon.ReadPID(pidFile)
		if err != nil {
			return err
		}
		report.PID = pid

		// Get PID file modification time for uptime calculation
		if fileInfo, err := os.Stat(pidFile); err == nil {
			report.Uptime = formatDuration(time.Since(fileInfo.ModTime()))
		}

		report.Health, report.Error = queryHealth(cmd)
	}

	return render(cmd.OutOrStdout(), report, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Status:\t%s\n", report.Status)
		if report.PID == 0 {
			return
		}
		fmt.Fprintf(tw, "PID:\t%d\n", report.PID)
		if report.Uptime != "" {
			fmt.Fprintf(tw, "Uptime:\t%s\n", report.Uptime)
		}
		if h := report.Health; h != nil {
			fmt.Fprintf(tw, "Tools:\t%d (%d running)\n", h.Tools, h.Running)
			fmt.Fprintf(tw, "Pending notifications:\t%d\n", h.PendingNotifications)
			fmt.Fprintf(tw, "Scheduled events:\t%d\n", h.ScheduledEvents)
			fmt.Fprintf(tw, "Stream clients:\t%d\n", h.StreamClients)
		}
		if report.Error != "" {
			fmt.Fprintf(tw, "API:\tunavailable (%s)\n", report.Error)
		}
	})
}

// queryHealth asks the API for counts. A daemon with the API disabled
// still reports as running.
func queryHealth(cmd *cobra.Command) (*Health, string) {
	client, err := newClient(cmd)
	if err != nil {
		return nil, err.Error()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()

	h, err := client.Health(ctx)
	if err != nil {
		return nil, err.Error()
	}
	return &h, ""
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

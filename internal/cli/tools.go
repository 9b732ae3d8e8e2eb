package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/harun/vigil/pkg/scheduler"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:     "tools",
	Aliases: []string{"tool"},
	Short:   "Inspect and control registered tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools and their loop state",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start the check loop of an active tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolLoop(cmd, args[0], true)
	},
}

var toolsStopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop the check loop of an active tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolLoop(cmd, args[0], false)
	},
}

var toolsCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Run one check of an active tool now",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsCheck,
}

var toolsConfigCmd = &cobra.Command{
	Use:   "config <name> <options-json>",
	Short: "Replace a tool's options",
	Long: `Replace a tool's options with the given JSON object. The options are
validated against the tool's schema and persisted by the daemon.

Example:
  vigil tools config btc_monitor '{"threshold": 50000, "interval": 30}'`,
	Args: cobra.ExactArgs(2),
	RunE: runToolsConfig,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd, toolsStartCmd, toolsStopCmd, toolsCheckCmd, toolsConfigCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	tools, err := client.ListTools(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), tools, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "NAME\tTYPE\tRUNNING\tCHECKS\tTRIGGERS\tLAST STATUS\tNEXT CHECK")
		for _, t := range tools {
			checks, triggers, last, next := "-", "-", "-", "-"
			if t.Schedule != nil {
				checks = fmt.Sprint(t.Schedule.Checks)
				triggers = fmt.Sprint(t.Schedule.Triggers)
				if t.Schedule.LastStatus != "" {
					last = t.Schedule.LastStatus
				}
				next = formatTime(t.Schedule.NextCheckAt)
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
				t.Name, t.Kind, t.Running, checks, triggers, last, next)
		}
	})
}

func runToolLoop(cmd *cobra.Command, name string, start bool) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	var st scheduler.Status
	if start {
		st, err = client.StartTool(cmd.Context(), name)
	} else {
		st, err = client.StopTool(cmd.Context(), name)
	}
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), st, func(tw *tabwriter.Writer) {
		state := "stopped"
		if st.Running {
			state = "running"
		}
		fmt.Fprintf(tw, "Tool %s is %s\n", st.Tool, state)
	})
}

func runToolsCheck(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	res, err := client.CheckTool(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Status:\t%s\n", res.Status)
		fmt.Fprintf(tw, "Trigger:\t%t\n", res.Trigger)
		if res.Description != "" {
			fmt.Fprintf(tw, "Description:\t%s\n", res.Description)
		}
		if res.ToolToCall != "" {
			fmt.Fprintf(tw, "Proposed:\t%s %s\n", res.ToolToCall, formatArgs(res.Arguments))
		}

		keys := make([]string, 0, len(res.Data))
		for k := range res.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s:\t%v\n", k, res.Data[k])
		}
	})
}

func runToolsConfig(cmd *cobra.Command, args []string) error {
	var options map[string]any
	dec := json.NewDecoder(strings.NewReader(args[1]))
	dec.UseNumber()
	if err := dec.Decode(&options); err != nil {
		return fmt.Errorf("options must be a JSON object: %w", err)
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	v, err := client.UpdateToolConfig(cmd.Context(), args[0], options)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), v, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Updated %s\n", v.Name)
		keys := make([]string, 0, len(v.Config))
		for k := range v.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s:\t%v\n", k, v.Config[k])
		}
	})
}

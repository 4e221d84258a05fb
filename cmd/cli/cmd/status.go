package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"beaconci/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [run_id]",
	Short: "Get status of a pipeline run",
	Long:  `Retrieve detailed status information for a pipeline run, including its current state (pending, running, success, failure, cancelled), exit code, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID := args[0]

		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		run, err := client.GetRun(runID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed with status code: %d\n", apiErr.StatusCode)
			} else {
				cmd.Printf("Failed to fetch run: %v\n", err)
			}
			return
		}

		printStatus(cmd, *run)
	},
}

func printStatus(cmd *cobra.Command, run api.RunResponse) {
	// Header with status icon
	icon := statusIcon(run.Status)
	cmd.Printf("%s %sRun Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, run.ID)
	cmd.Printf("%sPipeline:%s    %s\n", colorDim, colorReset, run.Pipeline)
	cmd.Printf("%sBranch:%s      %s\n", colorDim, colorReset, run.Branch)
	cmd.Printf("%sLabel:%s       %s\n", colorDim, colorReset, run.AgentLabel)

	if run.Node != "" {
		cmd.Printf("%sNode:%s        %s\n", colorDim, colorReset, run.Node)
	}

	// Status with icon
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(run.Status))

	// Exit Code
	if run.ExitCode != nil {
		exitCode := *run.ExitCode
		if exitCode == 0 {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorGreen, exitCode, colorReset)
		} else {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorRed, exitCode, colorReset)
		}
	} else {
		cmd.Printf("%sExit Code:%s   -\n", colorDim, colorReset)
	}

	// Error (if present)
	if run.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *run.Error, colorReset)
	}

	// Timestamps with relative time. The global timeout runs from
	// enqueue, so the enqueue time is always shown.
	enqueued := run.EnqueuedAt
	cmd.Printf("%sEnqueued:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(&enqueued))
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(run.StartedAt))

	// Duration if both times available
	if run.StartedAt != nil && run.CompletedAt != nil {
		duration := run.CompletedAt.Sub(*run.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(run.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(run.CompletedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "success":
		return colorGreen + "✓" + colorReset
	case "failure":
		return colorRed + "✗" + colorReset
	case "cancelled":
		return colorRed + "⊘" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "success":
		return icon + " " + colorGreen + status + colorReset
	case "failure", "cancelled":
		return icon + " " + colorRed + status + colorReset
	case "running":
		return icon + " " + colorYellow + status + colorReset
	case "pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

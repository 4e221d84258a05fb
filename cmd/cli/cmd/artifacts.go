package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts [run_id]",
	Short: "List artifact archives uploaded by a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID := args[0]

		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		artifacts, err := client.ListArtifacts(runID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed with status code: %d\n", apiErr.StatusCode)
			} else {
				cmd.Printf("Failed to fetch artifacts: %v\n", err)
			}
			return
		}

		if len(artifacts) == 0 {
			cmd.Println("No artifacts uploaded")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tUPLOADED")
		for _, a := range artifacts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, formatSize(a.SizeBytes), a.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	},
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
}

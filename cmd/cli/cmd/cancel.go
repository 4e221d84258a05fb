package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [run_id]",
	Short: "Cancel a pipeline run",
	Long: `Cancel a pending or running pipeline run.

A pending run is removed from the queue. A running run is aborted by its
runner on the next heartbeat; the partial archives already uploaded are kept
and the workspace is wiped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID := args[0]

		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		if err := client.CancelRun(runID); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Run %s cancelled\n", runID)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"beaconci/pkg/api"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [pipeline]",
	Short: "Trigger a pipeline run",
	Long: `Enqueue a new run of the named pipeline for a branch.

The agent label defaults to the platform tokens found in the job path, so a
job path like "nimbus-eth2/linux/x86_64" targets runners labelled
"linux && x86_64". Pass --agent-label to override.

On non-mainline branches, active runs of the same pipeline and branch are
cancelled in favour of the new run.

Example:
  beaconctl trigger beacon-node --branch feature/snappy --job-path nimbus-eth2/linux/x86_64
  beaconctl trigger beacon-node --branch stable --job-path nimbus-eth2/macos/aarch64 --verbosity 2`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := args[0]

		flags := cmd.Flags()
		branch, _ := flags.GetString("branch")
		jobPath, _ := flags.GetString("job-path")
		agentLabel, _ := flags.GetString("agent-label")
		nimCommit, _ := flags.GetString("nim-commit")
		verbosity, _ := flags.GetInt("verbosity")

		if branch == "" {
			cmd.Println("Error: --branch is required")
			return
		}

		req := api.TriggerRunRequest{
			Branch:     branch,
			JobPath:    jobPath,
			AgentLabel: agentLabel,
			NimCommit:  nimCommit,
		}
		if flags.Changed("verbosity") {
			req.Verbosity = &verbosity
		}

		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		result, err := client.TriggerRun(pipeline, req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Trigger failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Trigger failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Run enqueued!\nRun ID: %s\n", result.RunID)
		for _, id := range result.Superseded {
			cmd.Printf("Superseded run: %s\n", id)
		}
	},
}

func init() {
	flags := triggerCmd.Flags()
	flags.StringP("branch", "b", "", "Branch to build (required)")
	flags.StringP("job-path", "p", "", "Job path whose platform tokens select the agent label")
	flags.String("agent-label", "", "Explicit agent label expression (overrides job path tokens)")
	flags.IntP("verbosity", "v", api.VerbosityQuiet, "Build verbosity (0-2)")
	flags.String("nim-commit", "", "Pin the Nim compiler to a commit")

	rootCmd.AddCommand(triggerCmd)
}

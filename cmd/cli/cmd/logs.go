package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var follow bool

var logsCmd = &cobra.Command{
	Use:   "logs [run_id]",
	Short: "Stream logs for a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID := args[0]

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			os.Exit(0)
		}()

		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		var lastID int64 = 0

		for {
			newLogs, err := client.GetLogs(runID, lastID)
			if err != nil {
				cmd.Printf("Error fetching logs: %v\n", err)
				if !follow {
					break
				}
				time.Sleep(2 * time.Second) // Retry backoff
				continue
			}

			// Print new logs
			for _, log := range newLogs {
				cmd.Print(log.Content)
				if len(log.Content) > 0 && log.Content[len(log.Content)-1] != '\n' {
					cmd.Println()
				}

				if log.ID > lastID {
					lastID = log.ID
				}
			}

			if !follow {
				// An empty page means we caught up; otherwise loop
				// immediately for the next page.
				if len(newLogs) == 0 {
					break
				}
				continue
			}

			// If following, wait before polling again
			time.Sleep(1 * time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List registered pipeline definitions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewRunClient(viper.GetString("url"), viper.GetString("token"))
		pipelines, err := client.ListPipelines()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed with status code: %d\n", apiErr.StatusCode)
			} else {
				cmd.Printf("Failed to fetch pipelines: %v\n", err)
			}
			return
		}

		if len(pipelines) == 0 {
			cmd.Println("No pipelines registered")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCATEGORY\tSTAGES\tMAX TOTAL\tMAX PER NODE")
		for _, p := range pipelines {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", p.Name, p.Category, p.Stages, p.MaxTotal, p.MaxPerNode)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(pipelinesCmd)
}

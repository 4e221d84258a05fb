package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "beaconctl",
	Short: "Beaconctl is a command line tool for the beaconci build system",
	Long: `beaconctl is the command-line interface for the BeaconCI pipeline platform.

BeaconCI runs beacon-node build pipelines on a fleet of labelled runners. A
trigger enqueues a run for a branch; runners with matching labels claim it,
execute the stage graph and ship logs and artifact archives back to the
controller.

Common workflows:

  Trigger a pipeline run:
    beaconctl trigger beacon-node --branch feature/snappy --job-path nimbus-eth2/linux/x86_64

  Check run status:
    beaconctl status <run-id>

  Tail logs:
    beaconctl logs <run-id> --follow

  Cancel a run:
    beaconctl cancel <run-id>

  List registered pipelines:
    beaconctl pipelines

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    BEACONCI_URL      API endpoint (default: http://localhost:6161)
    BEACONCI_TOKEN    Bearer token, only needed when the controller enforces auth`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".beaconctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".beaconctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "BEACONCI_VARNAME"
	viper.SetEnvPrefix("BEACONCI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.beaconctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "BeaconCI Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "terabethia-relayer",
		Short: "Terabethia cross-chain message relayer",
	}
	rootCmd.PersistentFlags().String("config", "./config.yml", "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		RelayCmd(),
		PollCmd(),
		SendCmd(),
		CheckCmd(),
		NonceCmd(),
		InspectCmd(),
		ReplayCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		panic(err)
	}
}

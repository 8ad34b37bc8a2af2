package cmd

import (
	"fmt"
	"os"

	"echoheritage/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "echoheritage",
	Short: "EchoHeritage is a heritage audio archive and fusion platform.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

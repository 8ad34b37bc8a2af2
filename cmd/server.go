package cmd

import (
	"echoheritage/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the EchoHeritage HTTP server",
	Long:  `Start the EchoHeritage API server: track archive, upload validation, fusion and moderation endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

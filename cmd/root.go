package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "splitrelay",
	Short: "Telegram relay for the split-bot AI backend",
	Long:  "Relays mention-activated text messages and image uploads from Telegram to the split-bot backend and posts the answers back to the chat.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the conversation engine server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "screenflow",
	Short: "Recruiter-candidate conversation engine",
	Long:  "Screenflow drives recruiter-candidate screening chats: it classifies each inbound message, answers candidate questions from the job's knowledge base, walks the configured screening questions, and escalates to a human when the conversation calls for one.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

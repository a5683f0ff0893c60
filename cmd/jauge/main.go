package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jauge",
	Short: "Jauge — LLM usage accounting service",
	Long:  "Jauge ingests per-request usage records from an LLM API proxy tier and serves cost accounting, filtered request logs, daily trends, and provider/model rollups to a dashboard.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/jauge.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

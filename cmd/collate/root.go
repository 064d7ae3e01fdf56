package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "collate",
	Short: "Shard coordination for asynchronous document analysis",
	Long: `Collate watches the object store that an external document-analysis
service writes numbered result shards into, detects when a job's shard
set is complete, merges the shards in order, and signals the waiting
orchestrator exactly once per job.

It also runs the orchestrator side: launching analysis jobs against a
source document and carrying the merged text through formatting,
optional translation, and optional speech synthesis.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.collate/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(versionCmd)
}

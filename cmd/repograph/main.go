package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile    string
	verbose    bool
	jsonOutput bool
	logger     *logrus.Logger
	cfg        *config.Config
	logFile    *logging.Logger
)

func main() {
	err := rootCmd.Execute()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repograph",
	Short: "RepoGraph - dependency and service graphs for source repositories",
	Long: `RepoGraph scans a repository for dependencies, services, tools and code
elements, infers how they relate, and keeps the result as a queryable graph.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var loadErr error
		cfg, loadErr = config.Load(cfgFile)
		if loadErr != nil {
			cfg = config.Default()
		}

		logCfg := logging.DefaultConfig(verbose)
		if !verbose && cfg.Logging.Level != "" {
			logCfg.Level = cfg.Logging.Level
		}
		logCfg.OutputFile = cfg.Logging.File
		logCfg.JSONFormat = cfg.Logging.JSON

		l, err := logging.New(logCfg)
		if err != nil {
			logger = logrus.New()
			logger.SetOutput(os.Stderr)
			logger.WithError(err).Warn("Failed to initialize logger, using defaults")
		} else {
			logFile = l
			logger = l.Logger
		}

		if loadErr != nil {
			logger.WithError(loadErr).Warn("Failed to load config, using defaults")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .repograph.yaml or ~/.repograph/.repograph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.SetVersionTemplate(`RepoGraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(neighborsCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(credentialsCmd)
}

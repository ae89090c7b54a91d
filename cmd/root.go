package cmd

import (
	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/config"
	"github.com/arkhive/arkhive/internal/logger"
)

var (
	cfgFile string
	logJSON bool
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "arkhive",
	Short: "arkhive backs up a directory and its databases to a remote host over SSH",
	Long: `arkhive archives a configured directory, stages MySQL and PostgreSQL
dumps alongside it, and streams the result to a remote host over SSH as a
single dated archive. Archives can be compressed, encrypted, pruned by a
retention window, listed, verified in place and restored, all from one CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		l := logger.New(logger.Config{
			JSON:    logJSON,
			NoColor: noColor,
			Level:   level,
		})
		cmd.SetContext(logger.WithContext(cmd.Context(), l))
		return nil
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("arkhive version {{ .Version }}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func Execute() error {
	return rootCmd.Execute()
}

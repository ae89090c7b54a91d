package cmd

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/arkhive/arkhive/internal/logger"
)

// Set through -ldflags at release time; go-run builds keep the
// defaults and fall back to the module build info below.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the arkhive version",
	Run: func(cmd *cobra.Command, args []string) {
		commit, date := Commit, BuildDate
		if commit == "none" {
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					switch s.Key {
					case "vcs.revision":
						commit = s.Value
						if len(commit) > 12 {
							commit = commit[:12]
						}
					case "vcs.time":
						date = s.Value
					}
				}
			}
		}

		logger.FromContext(cmd.Context()).Info("arkhive",
			"version", Version,
			"commit", commit,
			"built_at", date,
			"runtime", runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH,
		)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

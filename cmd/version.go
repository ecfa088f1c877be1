package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// These are set via -ldflags at build time; the zero values below are
// what a `go build` without them produces.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var str = `
Version: %s
Commit: %s
Build date: %s
GOOS: %s-%s`

var versionCmd = &cobra.Command{
	Use: "version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf(
			str+"\n",
			Version,
			Commit,
			BuildDate,
			runtime.GOOS,
			runtime.GOARCH,
		)
	},
}

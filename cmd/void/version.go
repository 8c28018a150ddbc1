package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/morezero/void-worker/pkg/protocol"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var printAllVersion bool

var versionTemplate = `Version:	  %s
Protocol:	  %s (accepts %s)
Go version:	  %s
OS/Arch:	  %s/%s
`

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if printAllVersion {
			fmt.Printf(versionTemplate,
				version,
				protocol.Version, protocol.Compatible,
				runtime.Version(),
				runtime.GOOS,
				runtime.GOARCH)
			return
		}
		fmt.Println(version)
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&printAllVersion, "all", "", false, "Print all version information")
}

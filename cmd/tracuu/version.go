package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			if buildInfo, ok := debug.ReadBuildInfo(); ok {
				if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
					fmt.Println(buildInfo.Main.Version)
					return
				}
			}
			fmt.Println(version)
		},
	}
}

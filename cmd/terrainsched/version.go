package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overwritten at release build time via -ldflags; "dev" is
// the value every local build carries.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the terrainsched version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

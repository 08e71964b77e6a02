package main

import (
	"fmt"

	"github.com/pSapien/udp/build"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information.",
	Run:   wrap(versioncmd),
}

func versioncmd() {
	fmt.Println("udpctl")
	fmt.Println("\tVersion " + build.Version)
}

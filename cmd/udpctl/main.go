package main

import (
	"fmt"
	"os"
	"reflect"

	"github.com/pSapien/udp/build"
	"github.com/spf13/cobra"
)

var (
	// Flags.
	listenName string // --name, the identity a udpctl listen peer logs for each accepted caller
)

var rootCmd *cobra.Command

// Exit codes, following the same sysexits.h-inspired convention the
// teacher's own CLI uses.
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

// wrap wraps a generic command with a check that the command has been
// passed the correct number of arguments. The command must take only
// strings as arguments.
func wrap(fn interface{}) func(*cobra.Command, []string) {
	fnVal, fnType := reflect.ValueOf(fn), reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		panic("wrapped function has wrong type signature")
	}
	for i := 0; i < fnType.NumIn(); i++ {
		if fnType.In(i).Kind() != reflect.String {
			panic("wrapped function has wrong type signature")
		}
	}

	return func(cmd *cobra.Command, args []string) {
		if len(args) != fnType.NumIn() {
			cmd.UsageFunc()(cmd)
			os.Exit(exitCodeUsage)
		}
		argVals := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			argVals[i] = reflect.ValueOf(args[i])
		}
		fnVal.Call(argVals)
	}
}

// die prints its arguments to stderr, then exits the program.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "udpctl v" + build.Version,
		Long:  "udpctl v" + build.Version + ": a small client/server for the reliable UDP transport this module implements.",
	}
	rootCmd = root

	root.AddCommand(versionCmd)
	root.AddCommand(listenCmd)
	root.AddCommand(connectCmd)
	root.AddCommand(sendCmd)
	root.AddCommand(statsCmd)

	root.PersistentFlags().StringVarP(&listenName, "name", "n", "udpctl", "identity to announce when connecting")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}

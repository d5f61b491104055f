package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Errors raised before a subcommand ran are argument problems.
		if !commandRan {
			os.Exit(4)
		}
		os.Exit(exitCode(err))
	}
}

// Package cmd implements the skillforge CLI: a thin cobra front end over
// the core package surface (internal/manifest, internal/session,
// internal/credential), styled on forge-cli/cmd's global-flag-plus-init()
// command registration idiom.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "Compile and execute skills against a capability-scoped runtime",
	Long: "skillforge resolves a manifest of declared skills, builds and caches\n" +
		"their runtime artifacts, and executes individual tool calls inside a\n" +
		"sandboxed wasm component, an allow-listed host command, or a container,\n" +
		"each scoped to the capabilities an instance declares.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "manifest", "skillforge.yaml", "path to the skill manifest")
}

// Execute runs the root command; main delegates here and exits non-zero on
// any returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

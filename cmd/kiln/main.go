package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/kiln/internal/plugins"
	"github.com/efebarandurmaz/kiln/internal/refc"
)

var version = "0.1.0"

// exitError ends the process with code. An empty message prints nothing.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	root := newRootCmd(defaultRegistry)
	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(os.Stderr, exit.msg)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

// defaultRegistry holds the tools and extensions built into the binary.
func defaultRegistry() *plugins.Registry {
	registry := plugins.NewRegistry()
	registry.RegisterTool(refc.New(afero.NewOsFs(), nil))
	return registry
}

func newRootCmd(registry func() *plugins.Registry) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Virtualizing compiler driver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	rootCmd.AddCommand(
		newCompileCmd(&configPath, registry),
		newToolsCmd(registry),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "kiln %s\n", version)
			},
		},
	)
	return rootCmd
}

func newToolsCmd(registry func() *plugins.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered compiler tools, extensions and processors",
		Run: func(cmd *cobra.Command, args []string) {
			r := registry()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Tools:")
			for _, t := range r.Tools() {
				mark := ""
				if t.Primary() {
					mark = " (primary)"
				}
				fmt.Fprintf(w, "  %s%s\n", t.Name(), mark)
			}
			if exts := r.Extensions(); len(exts) > 0 {
				fmt.Fprintln(w, "Extensions:")
				for _, e := range exts {
					fmt.Fprintf(w, "  %s\n", e.Name())
				}
			}
			if procs := r.Processors(); len(procs) > 0 {
				fmt.Fprintln(w, "Processors:")
				for _, p := range procs {
					fmt.Fprintf(w, "  %s\n", p)
				}
			}
		},
	}
}

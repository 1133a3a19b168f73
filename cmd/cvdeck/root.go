package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/config"
)

var (
	configPath  string
	offlineFlag bool
	logLevel    string
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var rootCmd = &cobra.Command{
	Use:   "cvdeck",
	Short: "Manage CVs and cover letters across local and cloud storage",
	Long: `cvdeck keeps your CVs and cover letters in a local database and,
when cloud providers are connected, mirrors them to Google Drive,
OneDrive, Dropbox, or Box.

Documents always save locally first; cloud sync is best effort on top.
When the backend is unreachable the client runs fully offline against
local storage.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.cvdeck.yaml)")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "Force offline mode")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// withApp loads config, builds the dependency graph, establishes a session,
// and runs fn. The store is closed and background polls stopped on return.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if offlineFlag {
		cfg.Offline = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	if a.Sessions.Offline() {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Offline mode: backend unreachable, using local storage only"))
	}
	return fn(ctx, a)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and provider connection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sess := a.Sessions.Current()
			if sess == nil {
				fmt.Println(warnStyle.Render("No session"))
				return nil
			}

			mode := okStyle.Render("online")
			if sess.Offline {
				mode = warnStyle.Render("offline")
			}
			fmt.Println(headerStyle.Render("Session"))
			fmt.Printf("  %s  %s  expires %s\n",
				idStyle.Render(sess.ID), mode,
				dimStyle.Render(sess.ExpiresAt.Local().Format("2006-01-02 15:04")))
			fmt.Println()

			fmt.Println(headerStyle.Render("Providers"))
			conns := a.Providers.StatusAll(ctx)
			for _, conn := range conns {
				desc, err := registry.Describe(conn.Provider)
				if err != nil {
					continue
				}
				fmt.Printf("  %-14s %s", desc.DisplayName, renderStatus(conn))
				if conn.Email != "" {
					fmt.Printf("  %s", dimStyle.Render(conn.Email))
				}
				if conn.StorageQuota != "" {
					fmt.Printf("  %s", dimStyle.Render(conn.StorageQuota))
				}
				fmt.Println()
			}
			return nil
		})
	},
}

func renderStatus(conn model.Connection) string {
	s := string(conn.Status)
	switch conn.Status {
	case model.StatusConnected:
		s = okStyle.Render(s)
	case model.StatusError:
		s = warnStyle.Render(s)
	default:
		s = dimStyle.Render(s)
	}
	if conn.LastCheckFailed {
		s += " " + warnStyle.Render("(last check failed)")
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

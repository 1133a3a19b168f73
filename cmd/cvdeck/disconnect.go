package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Disconnect a cloud storage provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}
			if err := a.Providers.Disconnect(ctx, p); err != nil {
				// The local state is disconnected regardless; surface the
				// backend failure but do not fail the command.
				fmt.Println(warnStyle.Render("Backend disconnect failed: " + err.Error()))
			}
			a.Sessions.RecordProviders(a.Providers.ConnectedIDs())
			fmt.Printf("%s disconnected\n", displayName(p))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}

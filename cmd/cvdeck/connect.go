package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/provider"
	"github.com/cvdeck/cvdeck/internal/registry"
)

// connectTimeout bounds the wait for the browser round trip.
const connectTimeout = 5 * time.Minute

var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Connect a cloud storage provider",
	Long: `Connect a cloud storage provider (google_drive, onedrive, dropbox, box).

Online, this opens an OAuth authorization flow: visit the printed URL in a
browser and approve access; the local callback server completes the
connection. Offline, the connection is simulated against local state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			if a.Sessions.Offline() {
				if _, err := a.Providers.Connect(ctx, p); err != nil {
					return err
				}
				fmt.Printf("%s connected %s\n", displayName(p), dimStyle.Render("(offline, simulated)"))
				return nil
			}

			cs := provider.NewCallbackServer(a.Config.CallbackAddr, a.Providers, a.Logger)
			if err := cs.Start(); err != nil {
				return fmt.Errorf("start callback server: %w", err)
			}
			defer cs.Shutdown(context.Background())

			authURL, err := a.Providers.Connect(ctx, p)
			if err != nil {
				return err
			}

			fmt.Println(headerStyle.Render("Authorize " + displayName(p)))
			fmt.Println("Open this URL in your browser:")
			fmt.Println()
			fmt.Println("  " + authURL)
			fmt.Println()
			fmt.Println(dimStyle.Render("Waiting for authorization (listening on " + cs.Addr() + ")..."))

			select {
			case id := <-cs.Done:
				if err := completeConnect(a, id); err != nil {
					return err
				}
				fmt.Printf("%s %s\n", displayName(id), okStyle.Render("connected"))
				return nil
			case <-time.After(connectTimeout):
				return fmt.Errorf("authorization timed out after %s", connectTimeout)
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	},
}

// completeConnect verifies the callback outcome. The callback server signals
// Done for every handled callback, failed exchanges included, so the recorded
// connection state decides success.
func completeConnect(a *app.App, id model.ProviderID) error {
	if !a.Providers.Connected(id) {
		return fmt.Errorf("%s authorization failed (state mismatch, expired request, or exchange error); try connecting again", displayName(id))
	}
	a.Sessions.RecordProviders(a.Providers.ConnectedIDs())
	return nil
}

func parseProvider(arg string) (model.ProviderID, error) {
	p := model.ProviderID(arg)
	if _, err := registry.Describe(p); err != nil {
		return "", err
	}
	return p, nil
}

func displayName(p model.ProviderID) string {
	desc, err := registry.Describe(p)
	if err != nil {
		return string(p)
	}
	return desc.DisplayName
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

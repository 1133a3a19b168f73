package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
)

var favoriteRemove bool

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Mark or unmark a local document as a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id := args[0]
			// Confirm the document exists before flagging it.
			if _, err := a.Store.LoadLocal(id); err != nil {
				return err
			}
			if err := a.Store.SetFavorite(id, !favoriteRemove); err != nil {
				return err
			}
			if favoriteRemove {
				fmt.Printf("Removed favorite %s\n", idStyle.Render(id))
			} else {
				fmt.Printf("Favorited %s\n", idStyle.Render(id))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(favoriteCmd)
	favoriteCmd.Flags().BoolVar(&favoriteRemove, "remove", false, "Remove the favorite flag")
}

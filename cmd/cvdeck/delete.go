package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id := args[0]
			if p, fileID, ok := splitCloudID(id); ok {
				if err := a.Providers.DeleteDocument(ctx, p, fileID); err != nil {
					return err
				}
				fmt.Printf("Deleted %s from %s\n", idStyle.Render(id), displayName(p))
				return nil
			}
			if err := a.Store.DeleteLocal(id); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", idStyle.Render(id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

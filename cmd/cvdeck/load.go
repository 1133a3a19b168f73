package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
)

var loadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Print a document's content",
	Long: `Load a document by ID and print its content to stdout. Cloud IDs
(the "cloud:<provider>:<file>" form shown by list) are fetched from
the provider; anything else is read from local storage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			doc, err := fetchDocument(ctx, a, args[0])
			if err != nil {
				return err
			}
			fmt.Print(doc.Content)
			if !strings.HasSuffix(doc.Content, "\n") {
				fmt.Println()
			}
			return nil
		})
	},
}

func fetchDocument(ctx context.Context, a *app.App, id string) (*model.Document, error) {
	if p, fileID, ok := splitCloudID(id); ok {
		return a.Providers.LoadDocument(ctx, p, fileID)
	}
	return a.Store.LoadLocal(id)
}

// splitCloudID parses the "cloud:<provider>:<file>" listing ID form.
func splitCloudID(id string) (model.ProviderID, string, bool) {
	rest, ok := strings.CutPrefix(id, "cloud:")
	if !ok {
		return "", "", false
	}
	p, fileID, ok := strings.Cut(rest, ":")
	if !ok || p == "" || fileID == "" {
		return "", "", false
	}
	return model.ProviderID(p), fileID, true
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

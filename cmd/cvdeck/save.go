package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/saveflow"
)

var (
	saveID       string
	saveKind     string
	saveTitle    string
	saveCompany  string
	saveJobTitle string
	saveFile     string
	saveTo       string
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a document locally and optionally to a cloud provider",
	Long: `Save a document. The local write always happens first; choosing a
cloud target syncs the copy there afterwards. A failed cloud sync
keeps the local copy and reports the failure.

Content is read from --file, or from stdin when --file is "-".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			content, err := readContent(saveFile)
			if err != nil {
				return err
			}

			doc := model.Document{
				ID:       saveID,
				Kind:     model.DocumentKind(saveKind),
				Title:    saveTitle,
				Content:  content,
				Company:  saveCompany,
				JobTitle: saveJobTitle,
			}
			if doc.Kind != model.KindCV && doc.Kind != model.KindCoverLetter {
				return fmt.Errorf("unknown kind %q (want cv or cover_letter)", saveKind)
			}

			opts := a.SaveFlow.Decide(doc)
			target, err := pickTarget(opts, saveTo)
			if err != nil {
				return err
			}

			saved, err := a.SaveFlow.Execute(ctx, doc, target)
			if err != nil {
				var saveErr *model.SaveError
				if errors.As(err, &saveErr) && saveErr.Leg == model.SaveLegCloud {
					fmt.Println(warnStyle.Render("Cloud sync failed: " + saveErr.Err.Error()))
					fmt.Printf("Saved locally as %s %s\n", idStyle.Render(saved.ID), dimStyle.Render("(not synced)"))
					return nil
				}
				return err
			}

			if saved.SyncedToCloud {
				fmt.Printf("Saved %s, synced to %s\n", idStyle.Render(saved.ID), displayName(target.Provider))
			} else {
				fmt.Printf("Saved %s locally\n", idStyle.Render(saved.ID))
			}
			return nil
		})
	},
}

// pickTarget resolves --to against the viable targets. An empty --to takes
// the forced preselection when there is one, local otherwise.
func pickTarget(opts saveflow.Options, to string) (saveflow.Target, error) {
	if to == "" {
		if opts.Forced && opts.Preselected != nil {
			return *opts.Preselected, nil
		}
		return saveflow.Target{Kind: saveflow.TargetLocal}, nil
	}
	if to == "local" {
		return saveflow.Target{Kind: saveflow.TargetLocal}, nil
	}
	for _, t := range opts.Targets {
		if t.Kind == saveflow.TargetCloud && string(t.Provider) == to {
			return t, nil
		}
	}
	return saveflow.Target{}, fmt.Errorf("%q is not a viable save target (provider not connected?)", to)
}

func readContent(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--file is required")
	}
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().StringVar(&saveID, "id", "", "Document ID (empty creates a new document)")
	saveCmd.Flags().StringVar(&saveKind, "kind", "cv", "Document kind: cv or cover_letter")
	saveCmd.Flags().StringVar(&saveTitle, "title", "", "Document title")
	saveCmd.Flags().StringVar(&saveCompany, "company", "", "Company (cover letters)")
	saveCmd.Flags().StringVar(&saveJobTitle, "job-title", "", "Job title (cover letters)")
	saveCmd.Flags().StringVar(&saveFile, "file", "", `Content file, or "-" for stdin`)
	saveCmd.Flags().StringVar(&saveTo, "to", "", "Save target: local or a provider id")
}

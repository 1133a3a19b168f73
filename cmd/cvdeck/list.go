package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
)

var (
	listKind      string
	listFavorites bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents across local storage and connected providers",
	Long: `List all documents: local, cloud (per connected provider), and the
current draft, merged into one view. Duplicates of the same logical
document are collapsed, cloud copies taking precedence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			docs, err := a.Reconciler.ListAll(ctx)
			if err != nil {
				return err
			}
			favs, err := a.Store.Favorites()
			if err != nil {
				return err
			}

			if listKind != "" {
				docs = filterKind(docs, model.DocumentKind(listKind))
			}
			if listFavorites {
				kept := docs[:0]
				for _, d := range docs {
					if favs[d.ID] {
						kept = append(kept, d)
					}
				}
				docs = kept
			}

			if len(docs) == 0 {
				fmt.Println(headerStyle.Render("No documents"))
				return nil
			}

			fmt.Println(headerStyle.Render(fmt.Sprintf("%d document(s)", len(docs))))
			fmt.Println()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("ID"),
				headerStyle.Render("Kind"),
				headerStyle.Render("Title"),
				headerStyle.Render("Source"),
				headerStyle.Render("Modified"),
			}, "\t"))
			for _, d := range docs {
				title := d.Title
				if title == "" {
					title = "Untitled"
				}
				title = truncateTitle(title, 40)
				if favs[d.ID] {
					title = "* " + title
				}
				if d.Kind == model.KindCoverLetter && d.Company != "" {
					title += " " + dimStyle.Render("("+d.Company+")")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					idStyle.Render(d.ID),
					string(d.Kind),
					title,
					renderSource(d),
					dimStyle.Render(relativeTime(d.LastModified)))
			}
			w.Flush()

			for _, soft := range a.Reconciler.SoftErrors() {
				fmt.Println(warnStyle.Render(fmt.Sprintf("Warning: %s listing failed: %v", soft.Provider, soft.Err)))
			}
			return nil
		})
	},
}

// truncateTitle caps a title at max runes, never splitting a multibyte rune.
func truncateTitle(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func filterKind(docs []model.Document, kind model.DocumentKind) []model.Document {
	kept := docs[:0]
	for _, d := range docs {
		if d.Kind == kind {
			kept = append(kept, d)
		}
	}
	return kept
}

func renderSource(d model.Document) string {
	switch d.Source.Kind {
	case model.SourceCloud:
		s := displayName(d.Source.Provider)
		if d.SyncedToCloud {
			return okStyle.Render(s)
		}
		return s
	case model.SourceDraft:
		return warnStyle.Render("draft")
	default:
		if d.SyncedToCloud {
			return "local " + okStyle.Render("(synced)")
		}
		return "local"
	}
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Local().Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Local().Format("Mon 15:04")
	default:
		return t.Local().Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listKind, "kind", "", "Filter by kind: cv or cover_letter")
	listCmd.Flags().BoolVar(&listFavorites, "favorites", false, "Show only favorites")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/model"
)

var (
	draftKind     string
	draftTitle    string
	draftCompany  string
	draftJobTitle string
	draftFile     string
	draftCloudRef string
	draftLocalRef string
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage the work-in-progress draft",
	Long: `Manage the single work-in-progress draft. A draft survives restarts
and appears in listings until it is promoted by saving it (see the
save command) or cleared.`,
}

var draftSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store the current draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			content, err := readContent(draftFile)
			if err != nil {
				return err
			}
			doc := model.Document{
				Kind:            model.DocumentKind(draftKind),
				Title:           draftTitle,
				Content:         content,
				Company:         draftCompany,
				JobTitle:        draftJobTitle,
				Source:          model.DraftSource,
				OriginalCloudID: draftCloudRef,
				OriginalLocalID: draftLocalRef,
			}
			if doc.Kind != model.KindCV && doc.Kind != model.KindCoverLetter {
				return fmt.Errorf("unknown kind %q (want cv or cover_letter)", draftKind)
			}
			if err := a.Store.SaveDraft(doc); err != nil {
				return err
			}
			fmt.Println("Draft saved")
			return nil
		})
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			doc, err := a.Store.LoadDraft()
			if errors.Is(err, model.ErrNoDraft) {
				fmt.Println(dimStyle.Render("No draft"))
				return nil
			}
			if err != nil {
				return err
			}
			if doc.Title != "" {
				fmt.Println(headerStyle.Render(doc.Title))
			}
			fmt.Print(doc.Content)
			if !strings.HasSuffix(doc.Content, "\n") {
				fmt.Println()
			}
			return nil
		})
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the current draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Store.ClearDraft(); err != nil {
				return err
			}
			fmt.Println("Draft cleared")
			return nil
		})
	},
}

func init() {
	draftCmd.AddCommand(draftSaveCmd, draftShowCmd, draftClearCmd)
	rootCmd.AddCommand(draftCmd)

	draftSaveCmd.Flags().StringVar(&draftKind, "kind", "cover_letter", "Document kind: cv or cover_letter")
	draftSaveCmd.Flags().StringVar(&draftTitle, "title", "", "Draft title")
	draftSaveCmd.Flags().StringVar(&draftCompany, "company", "", "Company (cover letters)")
	draftSaveCmd.Flags().StringVar(&draftJobTitle, "job-title", "", "Job title (cover letters)")
	draftSaveCmd.Flags().StringVar(&draftFile, "file", "", `Content file, or "-" for stdin`)
	draftSaveCmd.Flags().StringVar(&draftCloudRef, "edits-cloud", "", "Cloud document ID this draft edits")
	draftSaveCmd.Flags().StringVar(&draftLocalRef, "edits-local", "", "Local document ID this draft edits")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cvdeck/cvdeck/internal/app"
	"github.com/cvdeck/cvdeck/internal/backend"
	"github.com/cvdeck/cvdeck/internal/model"
)

var (
	genCompany   string
	genJobTitle  string
	genPosting   string
	genTone      string
	genCVID      string
	genLanguage  string
	genExtra     string
	genSaveDraft bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a cover letter",
	Long: `Generate a cover letter for a company and role. Quick generations
return immediately; longer ones become a backend task that is polled
until it completes. Requires an online session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if genCompany == "" || genJobTitle == "" {
				return fmt.Errorf("--company and --job-title are required")
			}

			posting := ""
			if genPosting != "" {
				b, err := os.ReadFile(genPosting)
				if err != nil {
					return fmt.Errorf("read job posting: %w", err)
				}
				posting = string(b)
			}

			req := backend.GenerateRequest{
				Company:    genCompany,
				JobTitle:   genJobTitle,
				JobPosting: posting,
				Tone:       genTone,
				CVID:       genCVID,
				Language:   genLanguage,
				Extra:      genExtra,
			}

			done := make(chan string, 1)
			fail := make(chan error, 1)
			handle, err := a.Generator.Generate(ctx, req,
				func(result string) { done <- result },
				func(err error) { fail <- err },
			)
			if err != nil {
				return err
			}
			if handle != nil {
				fmt.Fprintln(os.Stderr, dimStyle.Render("Generation task "+handle.TaskID+" pending..."))
			}

			var result string
			select {
			case result = <-done:
			case err := <-fail:
				return err
			case <-ctx.Done():
				if handle != nil {
					handle.Cancel()
				}
				return ctx.Err()
			}

			if genSaveDraft {
				draft := model.Document{
					Kind:     model.KindCoverLetter,
					Title:    genCompany + " - " + genJobTitle,
					Content:  result,
					Company:  genCompany,
					JobTitle: genJobTitle,
					Source:   model.DraftSource,
				}
				if err := a.Store.SaveDraft(draft); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, okStyle.Render("Saved as draft"))
			}

			fmt.Println(result)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genCompany, "company", "", "Target company")
	generateCmd.Flags().StringVar(&genJobTitle, "job-title", "", "Target role")
	generateCmd.Flags().StringVar(&genPosting, "posting", "", "File holding the job posting text")
	generateCmd.Flags().StringVar(&genTone, "tone", "", "Writing tone")
	generateCmd.Flags().StringVar(&genCVID, "cv", "", "Local CV document ID to base the letter on")
	generateCmd.Flags().StringVar(&genLanguage, "language", "", "Output language")
	generateCmd.Flags().StringVar(&genExtra, "extra", "", "Extra instructions")
	generateCmd.Flags().BoolVar(&genSaveDraft, "draft", false, "Store the result as the current draft")
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/extract"
	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/placement"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Extract a resume and score it against a job once",
	Long: `Extract the text of a PDF resume and score it.

With --job and --student the application is recorded in the store.
With --title and --skills the resume is scored against an ad-hoc posting
and nothing is persisted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		resumePath, _ := cmd.Flags().GetString("resume")
		jobID, _ := cmd.Flags().GetString("job")
		studentID, _ := cmd.Flags().GetString("student")
		title, _ := cmd.Flags().GetString("title")
		skills, _ := cmd.Flags().GetStringSlice("skills")

		if resumePath == "" {
			return errors.New("--resume is required")
		}
		adHoc := jobID == "" && studentID == ""
		if adHoc && strings.TrimSpace(title) == "" {
			return errors.New("either --job and --student, or --title is required")
		}
		if !adHoc && (jobID == "" || studentID == "") {
			return errors.New("--job and --student must be used together")
		}

		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := os.ReadFile(resumePath)
		if err != nil {
			return fmt.Errorf("reading resume: %w", err)
		}

		text, err := e.extractor.Extract(ctx, data, extract.MIMEPDF)
		if err != nil {
			return err
		}
		e.logger.Info("resume extracted", zap.String("file", filepath.Base(resumePath)), zap.Int("runes", len([]rune(text))))

		var result any
		if adHoc {
			result, err = e.matcher.Score(ctx, text, placement.JobPosting{Title: title, RequiredSkills: skills})
		} else {
			result, err = e.manager.ScoreResume(ctx, lifecycle.ScoreRequest{
				StudentID:  studentID,
				JobID:      jobID,
				ResumeText: text,
			})
		}
		if err != nil {
			return err
		}

		pretty, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("resume", "r", "", "path to a PDF resume")
	scoreCmd.Flags().String("job", "", "job id to score against")
	scoreCmd.Flags().String("student", "", "student id owning the application")
	scoreCmd.Flags().String("title", "", "ad-hoc job title (no persistence)")
	scoreCmd.Flags().StringSlice("skills", nil, "ad-hoc required skills, comma separated")
}

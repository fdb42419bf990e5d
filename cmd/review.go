package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
)

const (
	PromptAccept = "Accept"
	PromptReject = "Reject with AI feedback"
	PromptBack   = "back"
	PromptDone   = "done"
)

var errExit = errors.New("exit requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending applications of a job interactively",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jobID, _ := cmd.Flags().GetString("job")
		if jobID == "" {
			return errors.New("--job is required")
		}

		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		job, err := e.manager.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		e.logger.Info("reviewing applications", zap.String("job", job.Title), zap.Strings("required_skills", job.RequiredSkills))

		for {
			err := reviewOnce(ctx, e.manager, job, e.logger)
			if errors.Is(err, errExit) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().String("job", "", "job id whose pending applications are reviewed")
}

func reviewOnce(ctx context.Context, manager *lifecycle.Manager, job *placement.JobPosting, log *zap.Logger) error {
	pending, err := manager.ListForJob(ctx, job.ID, placement.StatusPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info("exiting", zap.String("reason", "no pending applications left"))
		return errExit
	}

	items := make([]string, 0, len(pending)+1)
	for _, app := range pending {
		items = append(items, applicationLabel(app))
	}

	appPrompt := promptui.Select{
		Label: fmt.Sprintf("Pending applications for %s", job.Title),
		Items: append(items, PromptDone),
		Size:  10,
	}

	idx, selected, err := appPrompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptDone {
		return errExit
	}
	app := pending[idx]

	fmt.Printf("\nstudent:   %s\nscore:     %d%%\nmatched:   %s\nmissing:   %s\nreasoning: %s\n\n",
		app.StudentID, app.ResumeScore,
		strings.Join(app.MatchedSkills, ", "), strings.Join(app.MissingSkills, ", "),
		app.Reasoning,
	)

	actionPrompt := promptui.Select{
		Label: "Decision",
		Items: []string{PromptAccept, PromptReject, PromptBack},
	}
	_, action, err := actionPrompt.Run()
	if err != nil {
		return err
	}

	switch action {
	case PromptAccept:
		accepted, err := manager.Accept(ctx, app.ID)
		if err != nil {
			return reviewError(log, err)
		}
		log.Info("application accepted", logger.ApplicationFields(accepted)...)
	case PromptReject:
		res, err := manager.Reject(ctx, app.ID)
		if err != nil {
			return reviewError(log, err)
		}
		log.Info("application rejected",
			append(logger.ApplicationFields(res.Application),
				zap.String("recommendation", res.Feedback.Recommendation),
				zap.String("resource_link", res.Feedback.ResourceLink),
			)...,
		)
	}
	return nil
}

// reviewError keeps the session alive for errors a reviewer can act on.
func reviewError(log *zap.Logger, err error) error {
	switch placement.KindOf(err) {
	case placement.KindConflict, placement.KindJudge, placement.KindSchema:
		log.Warn("decision not applied", logger.ErrorFields(err)...)
		return nil
	}
	return err
}

func applicationLabel(app *placement.Application) string {
	missing := "-"
	if len(app.MissingSkills) > 0 {
		missing = strings.Join(app.MissingSkills, ",")
	}
	return fmt.Sprintf("%s %3d%% student=%s missing=%s", app.ID, app.ResumeScore, app.StudentID, missing)
}

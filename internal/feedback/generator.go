// Package feedback writes rejection feedback for students.
package feedback

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/ai"
	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/utils"
)

const (
	op                  = "feedback.generate"
	defaultMaxLogLength = 400
	noMissingSkills     = "none identified; suggest general growth for the role"
)

//go:embed prompt.md
var promptTemplate string

var feedbackContract = ai.MustContract("feedback", `{
  "type": "object",
  "required": ["recommendation", "resourceLink", "message"],
  "properties": {
    "recommendation": {"type": "string"},
    "resourceLink": {"type": "string", "pattern": "^\\S+$"},
    "message": {"type": "string", "minLength": 1}
  }
}`)

type Generator struct {
	judge        ai.Judge
	logger       *zap.Logger
	maxLogLength int
}

func NewGenerator(judge ai.Judge, log *zap.Logger, maxLogLength int) (*Generator, error) {
	if judge == nil {
		return nil, errors.New("feedback generator requires a judge")
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Generator{judge: judge, logger: logger.OrNop(log), maxLogLength: maxLogLength}, nil
}

// Prompt renders the feedback prompt.
func (g *Generator) Prompt(missingSkills []string, jobTitle string) string {
	skills := make([]string, 0, len(missingSkills))
	for _, s := range missingSkills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	missing := strings.Join(skills, ", ")
	if missing == "" {
		missing = noMissingSkills
	}

	return strings.NewReplacer(
		"{{JOB_TITLE}}", strings.TrimSpace(jobTitle),
		"{{MISSING_SKILLS}}", missing,
	).Replace(promptTemplate)
}

// Generate produces feedback for a student missing the given skills.
func (g *Generator) Generate(ctx context.Context, missingSkills []string, jobTitle string) (*placement.Feedback, error) {
	if strings.TrimSpace(jobTitle) == "" {
		return nil, placement.Errorf(placement.KindValidation, op, "job title is empty")
	}

	prompt := g.Prompt(missingSkills, jobTitle)
	g.logger.Debug("requesting feedback", zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLength)))

	raw, err := g.judge.Complete(ctx, prompt)
	if err != nil {
		if placement.KindOf(err) == "" {
			err = placement.Errorf(placement.KindJudge, op, "judge call failed: %w", err)
		}
		g.logger.Warn("feedback generation failed", logger.ErrorFields(err)...)
		return nil, err
	}
	g.logger.Debug("judge responded", zap.String("response_preview", utils.TruncateForLog(raw, g.maxLogLength)))

	var fb placement.Feedback
	if err := feedbackContract.Decode(raw, &fb); err != nil {
		g.logger.Warn("judge output rejected", logger.ErrorFields(err)...)
		return nil, err
	}

	fb.Recommendation = strings.TrimSpace(fb.Recommendation)
	fb.Message = strings.TrimSpace(fb.Message)
	if fb.Message == "" {
		return nil, placement.Errorf(placement.KindSchema, op, "feedback message is blank")
	}

	return &fb, nil
}

// Package matching scores a resume against a job posting with a judge model.
package matching

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
	op = "matching.score"

	defaultMaxLogLength   = 400
	defaultMaxResumeRunes = 20000
	noSkills              = "(none listed)"
)

//go:embed prompt.md
var promptTemplate string

var assessmentContract = ai.MustContract("match assessment", `{
  "type": "object",
  "required": ["matchPercentage", "matchedSkills", "missingSkills", "reasoning"],
  "properties": {
    "matchPercentage": {"type": "integer", "minimum": 0, "maximum": 100},
    "matchedSkills": {"type": "array", "items": {"type": "string"}},
    "missingSkills": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`)

// Options tunes prompt construction and log previews.
type Options struct {
	MaxLogLength   int
	MaxResumeRunes int
}

// Matcher produces MatchAssessments. It holds no per-call state.
type Matcher struct {
	judge          ai.Judge
	logger         *zap.Logger
	maxLogLength   int
	maxResumeRunes int
}

func NewMatcher(judge ai.Judge, log *zap.Logger, opts Options) (*Matcher, error) {
	if judge == nil {
		return nil, errors.New("matcher requires a judge")
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}
	if opts.MaxResumeRunes <= 0 {
		opts.MaxResumeRunes = defaultMaxResumeRunes
	}

	return &Matcher{
		judge:          judge,
		logger:         logger.OrNop(log),
		maxLogLength:   opts.MaxLogLength,
		maxResumeRunes: opts.MaxResumeRunes,
	}, nil
}

// Prompt renders the scoring prompt. Identical inputs give identical output.
func (m *Matcher) Prompt(resumeText string, job placement.JobPosting) string {
	skills := strings.Join(job.Skills(), ", ")
	if skills == "" {
		skills = noSkills
	}

	resume := strings.TrimSpace(resumeText)
	if runes := []rune(resume); len(runes) > m.maxResumeRunes {
		resume = string(runes[:m.maxResumeRunes])
	}

	return strings.NewReplacer(
		"{{JOB_TITLE}}", strings.TrimSpace(job.Title),
		"{{REQUIRED_SKILLS}}", skills,
		"{{JOB_DESCRIPTION}}", strings.TrimSpace(job.Description),
		"{{RESUME_TEXT}}", resume,
	).Replace(promptTemplate)
}

// Score asks the judge to assess resumeText against job.
func (m *Matcher) Score(ctx context.Context, resumeText string, job placement.JobPosting) (*placement.MatchAssessment, error) {
	if strings.TrimSpace(resumeText) == "" {
		return nil, placement.Errorf(placement.KindValidation, op, "resume text is empty")
	}

	log := m.logger.With(zap.String(logger.FieldJobID, job.ID))
	prompt := m.Prompt(resumeText, job)
	log.Debug("requesting match assessment", zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLength)))

	raw, err := m.judge.Complete(ctx, prompt)
	if err != nil {
		if placement.KindOf(err) == "" {
			err = placement.Errorf(placement.KindJudge, op, "judge call failed: %w", err)
		}
		log.Warn("match assessment failed", logger.ErrorFields(err)...)
		return nil, err
	}
	log.Debug("judge responded", zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLength)))

	var assessment placement.MatchAssessment
	if err := assessmentContract.Decode(raw, &assessment); err != nil {
		log.Warn("judge output rejected", logger.ErrorFields(err)...)
		return nil, err
	}

	if err := reconcile(&assessment, job.Skills()); err != nil {
		log.Warn("judge output rejected", logger.ErrorFields(err)...)
		return nil, err
	}

	log.Info("resume scored",
		zap.Int("match_percentage", assessment.MatchPercentage),
		zap.Int("matched", len(assessment.MatchedSkills)),
		zap.Int("missing", len(assessment.MissingSkills)),
	)

	return &assessment, nil
}

// reconcile maps the judge's skill names onto the job's spelling and
// enforces that both lists are drawn from the required set and disjoint.
func reconcile(a *placement.MatchAssessment, required []string) error {
	canonical := make(map[string]string, len(required))
	for _, skill := range required {
		canonical[strings.ToLower(skill)] = skill
	}

	matched, err := canonicalise(a.MatchedSkills, canonical, "matchedSkills")
	if err != nil {
		return err
	}
	missing, err := canonicalise(a.MissingSkills, canonical, "missingSkills")
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(matched))
	for _, skill := range matched {
		seen[skill] = struct{}{}
	}
	for _, skill := range missing {
		if _, ok := seen[skill]; ok {
			return placement.Errorf(placement.KindSchema, op, "skill %q is both matched and missing", skill)
		}
	}

	a.MatchedSkills = matched
	a.MissingSkills = missing
	a.Reasoning = strings.TrimSpace(a.Reasoning)
	return nil
}

func canonicalise(skills []string, canonical map[string]string, field string) ([]string, error) {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		name, ok := canonical[strings.ToLower(strings.TrimSpace(skill))]
		if !ok {
			return nil, placement.Errorf(placement.KindSchema, op, "%s contains %q, which is not a required skill", field, skill)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

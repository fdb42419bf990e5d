package placement

import (
	"strings"
	"time"
)

// JobPosting is the recruiter-owned job a resume is scored against.
type JobPosting struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RequiredSkills []string  `json:"requiredSkills"`
	RecruiterID    string    `json:"recruiterId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Skills returns the required skills trimmed and deduplicated
// case-insensitively, keeping the first spelling seen.
func (j JobPosting) Skills() []string {
	seen := make(map[string]struct{}, len(j.RequiredSkills))
	skills := make([]string, 0, len(j.RequiredSkills))
	for _, skill := range j.RequiredSkills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		key := strings.ToLower(skill)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, skill)
	}
	return skills
}

// Student is the applicant side of an application.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ResumeURL string    `json:"resumeUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MatchAssessment is the judge's verdict for one resume against one job.
type MatchAssessment struct {
	MatchPercentage int      `json:"matchPercentage" validate:"min=0,max=100"`
	MatchedSkills   []string `json:"matchedSkills" validate:"dive,required"`
	MissingSkills   []string `json:"missingSkills" validate:"dive,required"`
	Reasoning       string   `json:"reasoning"`
}

// Feedback is the remediation guidance attached to a rejection.
type Feedback struct {
	Recommendation string `json:"recommendation"`
	ResourceLink   string `json:"resourceLink" validate:"required,http_url"`
	Message        string `json:"message" validate:"required"`
}

// Application is the single record per (student, job) pair.
type Application struct {
	ID                     string     `json:"id"`
	StudentID              string     `json:"studentId"`
	JobID                  string     `json:"jobId"`
	ResumeScore            int        `json:"resumeScore"`
	MatchedSkills          []string   `json:"matchedSkills"`
	MissingSkills          []string   `json:"missingSkills"`
	Reasoning              string     `json:"reasoning"`
	ResumeURL              string     `json:"resumeUrl,omitempty"`
	Status                 Status     `json:"status"`
	AIFeedback             *string    `json:"aiFeedback"`
	FeedbackRecommendation string     `json:"feedbackRecommendation,omitempty"`
	FeedbackResourceLink   string     `json:"feedbackResourceLink,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	DecidedAt              *time.Time `json:"decidedAt,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.MatchedSkills = append(make([]string, 0, len(a.MatchedSkills)), a.MatchedSkills...)
	c.MissingSkills = append(make([]string, 0, len(a.MissingSkills)), a.MissingSkills...)
	if a.AIFeedback != nil {
		fb := *a.AIFeedback
		c.AIFeedback = &fb
	}
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		c.DecidedAt = &at
	}
	return &c
}

// Stats backs the placement-officer dashboard.
type Stats struct {
	Students     int            `json:"students"`
	Jobs         int            `json:"jobs"`
	Applications int            `json:"applications"`
	ByStatus     map[Status]int `json:"byStatus"`
}

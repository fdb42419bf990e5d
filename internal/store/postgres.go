package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/placement-engine/internal/placement"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	applicationColumns = `id, student_id, job_id, resume_score, matched_skills, missing_skills,
		reasoning, resume_url, status, ai_feedback, feedback_recommendation,
		feedback_resource_link, created_at, updated_at, decided_at`
)

// Postgres is a Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) CreateJob(ctx context.Context, job placement.JobPosting) (*placement.JobPosting, error) {
	const op = "store.create_job"

	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, title, description, required_skills, recruiter_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		job.ID, job.Title, job.Description, orEmpty(job.RequiredSkills), job.RecruiterID,
	).Scan(&job.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, placement.Errorf(placement.KindConflict, op, "job %s already exists", job.ID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	job.RequiredSkills = orEmpty(job.RequiredSkills)
	return &job, nil
}

func (p *Postgres) GetJob(ctx context.Context, jobID string) (*placement.JobPosting, error) {
	const op = "store.get_job"

	var job placement.JobPosting
	err := p.pool.QueryRow(ctx,
		`SELECT id, title, description, required_skills, recruiter_id, created_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&job.ID, &job.Title, &job.Description, &job.RequiredSkills, &job.RecruiterID, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, placement.Errorf(placement.KindNotFound, op, "job %s not found", jobID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &job, nil
}

func (p *Postgres) UpsertStudent(ctx context.Context, student placement.Student) (*placement.Student, error) {
	const op = "store.upsert_student"

	if student.ID == "" {
		student.ID = uuid.NewString()
	}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO students (id, name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		 RETURNING id, name, email, resume_url, created_at`,
		student.ID, student.Name, student.Email,
	).Scan(&student.ID, &student.Name, &student.Email, &student.ResumeURL, &student.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &student, nil
}

func (p *Postgres) GetStudent(ctx context.Context, studentID string) (*placement.Student, error) {
	return p.scanStudent(ctx, "store.get_student",
		`SELECT id, name, email, resume_url, created_at FROM students WHERE id = $1`, studentID)
}

func (p *Postgres) SetStudentResumeURL(ctx context.Context, studentID, resumeURL string) (*placement.Student, error) {
	return p.scanStudent(ctx, "store.set_resume_url",
		`UPDATE students SET resume_url = $2 WHERE id = $1
		 RETURNING id, name, email, resume_url, created_at`, studentID, resumeURL)
}

func (p *Postgres) scanStudent(ctx context.Context, op, query string, studentID string, args ...any) (*placement.Student, error) {
	var s placement.Student
	err := p.pool.QueryRow(ctx, query, append([]any{studentID}, args...)...).
		Scan(&s.ID, &s.Name, &s.Email, &s.ResumeURL, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, placement.Errorf(placement.KindNotFound, op, "student %s not found", studentID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

func (p *Postgres) UpsertApplication(ctx context.Context, in ApplicationUpsert) (*placement.Application, error) {
	const op = "store.upsert_application"

	row := p.pool.QueryRow(ctx,
		`INSERT INTO applications
		   (id, student_id, job_id, resume_score, matched_skills, missing_skills, reasoning, resume_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		 ON CONFLICT (student_id, job_id) DO UPDATE SET
		   resume_score   = EXCLUDED.resume_score,
		   matched_skills = EXCLUDED.matched_skills,
		   missing_skills = EXCLUDED.missing_skills,
		   reasoning      = EXCLUDED.reasoning,
		   resume_url     = COALESCE(NULLIF(EXCLUDED.resume_url, ''), applications.resume_url),
		   updated_at     = now()
		 WHERE applications.status = 'pending'
		 RETURNING `+applicationColumns,
		uuid.NewString(), in.StudentID, in.JobID, in.Assessment.MatchPercentage,
		orEmpty(in.Assessment.MatchedSkills), orEmpty(in.Assessment.MissingSkills),
		in.Assessment.Reasoning, in.ResumeURL,
	)

	app, err := scanApplication(row)
	switch {
	case err == nil:
		return app, nil
	case errors.Is(err, pgx.ErrNoRows):
		// The row exists and is no longer pending.
		current, getErr := p.GetApplicationByKey(ctx, in.StudentID, in.JobID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, placement.Conflict(op, current, "application %s is already %s", current.ID, current.Status)
	case pgCode(err) == pgForeignKeyViolation:
		return nil, placement.Errorf(placement.KindNotFound, op, "student %s or job %s not found", in.StudentID, in.JobID)
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
}

func (p *Postgres) GetApplication(ctx context.Context, id string) (*placement.Application, error) {
	app, err := scanApplication(p.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, placement.Errorf(placement.KindNotFound, "store.get_application", "application %s not found", id)
		}
		return nil, fmt.Errorf("store.get_application: %w", err)
	}
	return app, nil
}

func (p *Postgres) GetApplicationByKey(ctx context.Context, studentID, jobID string) (*placement.Application, error) {
	app, err := scanApplication(p.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE student_id = $1 AND job_id = $2`,
		studentID, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, placement.Errorf(placement.KindNotFound, "store.get_application",
				"no application for student %s and job %s", studentID, jobID)
		}
		return nil, fmt.Errorf("store.get_application: %w", err)
	}
	return app, nil
}

func (p *Postgres) SetApplicationStatus(ctx context.Context, id string, expected, next placement.Status, fields StatusFields) (*placement.Application, error) {
	const op = "store.set_status"

	if err := checkTransition(op, expected, next); err != nil {
		return nil, err
	}

	app, err := scanApplication(p.pool.QueryRow(ctx,
		`UPDATE applications SET
		   status                  = $3,
		   ai_feedback             = $4,
		   feedback_recommendation = $5,
		   feedback_resource_link  = $6,
		   decided_at              = CASE WHEN $7 THEN now() ELSE NULL END,
		   updated_at              = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+applicationColumns,
		id, string(expected), string(next), fields.AIFeedback,
		fields.FeedbackRecommendation, fields.FeedbackResourceLink, next.IsTerminal(),
	))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	current, getErr := p.GetApplication(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, placement.Conflict(op, current, "application %s is %s, expected %s", id, current.Status, expected)
}

func (p *Postgres) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*placement.Application, error) {
	const op = "store.list_applications"

	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.JobID != "" {
		add("job_id", filter.JobID)
	}
	if filter.StudentID != "" {
		add("student_id", filter.StudentID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	query := `SELECT ` + applicationColumns + ` FROM applications`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY resume_score DESC, created_at ASC, id ASC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", op, err)
	}
	defer rows.Close()

	apps := make([]*placement.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return apps, nil
}

func (p *Postgres) CountApplicationsByStatus(ctx context.Context) (map[placement.Status]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT status, count(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store.count_applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[placement.Status]int, 3)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store.count_applications scan: %w", err)
		}
		counts[placement.Status(status)] = n
	}
	return counts, rows.Err()
}

func (p *Postgres) CountStudents(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT count(*) FROM students`)
}

func (p *Postgres) CountJobs(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT count(*) FROM jobs`)
}

func (p *Postgres) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("store.count: %w", err)
	}
	return n, nil
}

func scanApplication(row pgx.Row) (*placement.Application, error) {
	var (
		app    placement.Application
		status string
	)
	err := row.Scan(
		&app.ID, &app.StudentID, &app.JobID, &app.ResumeScore,
		&app.MatchedSkills, &app.MissingSkills, &app.Reasoning, &app.ResumeURL,
		&status, &app.AIFeedback, &app.FeedbackRecommendation,
		&app.FeedbackResourceLink, &app.CreatedAt, &app.UpdatedAt, &app.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Status = placement.Status(status)
	app.MatchedSkills = orEmpty(app.MatchedSkills)
	app.MissingSkills = orEmpty(app.MissingSkills)
	return &app, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/ai"
	"github.com/spigell/placement-engine/internal/feedback"
	"github.com/spigell/placement-engine/internal/intake"
	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/matching"
	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type replyJudge struct {
	score    string
	feedback string
	err      error
}

func (j *replyJudge) Complete(ctx context.Context, prompt string) (string, error) {
	if j.err != nil {
		return "", j.err
	}
	if strings.Contains(prompt, "was not selected") {
		return j.feedback, nil
	}
	return j.score, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, data []byte, declaredMIME string) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", placement.Errorf(placement.KindExtraction, "extract", "not a PDF")
	}
	return "Python SQL", nil
}

func newTestServer(t *testing.T, judge ai.Judge) http.Handler {
	t.Helper()

	matcher, err := matching.NewMatcher(judge, nil, matching.Options{})
	require.NoError(t, err)
	generator, err := feedback.NewGenerator(judge, nil, 0)
	require.NoError(t, err)

	manager, err := lifecycle.NewManager(lifecycle.Deps{
		Store:     store.NewMemory(),
		Scorer:    matcher,
		Feedback:  generator,
		Extractor: stubExtractor{},
		Documents: intake.NewWithFs(afero.NewMemMapFs(), "https://files.example.com"),
	})
	require.NoError(t, err)

	return New(manager, Config{MaxUploadBytes: 1024}, zap.NewNop()).Handler()
}

func defaultJudge() *replyJudge {
	return &replyJudge{
		score:    `{"matchPercentage": 67, "matchedSkills": ["Python", "SQL"], "missingSkills": ["Kubernetes"], "reasoning": "ok"}`,
		feedback: `{"recommendation": "Learn Kubernetes", "resourceLink": "https://kubernetes.io/docs/", "message": "Keep going!"}`,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seed(t *testing.T, h http.Handler) (studentID, jobID string) {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/v1/students", map[string]string{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	student := decode[placement.Student](t, rec)

	rec = do(t, h, http.MethodPost, "/api/v1/jobs", map[string]any{
		"title":          "Backend Engineer",
		"requiredSkills": []string{"Python", "SQL", "Kubernetes"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[placement.JobPosting](t, rec)

	return student.ID, job.ID
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, defaultJudge())
	rec := do(t, h, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScoreAcceptFlow(t *testing.T) {
	h := newTestServer(t, defaultJudge())
	studentID, jobID := seed(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/applications/score", map[string]string{
		"studentId": studentID, "jobId": jobID, "resumeText": "Python, SQL",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scored := decode[lifecycle.ScoreResult](t, rec)
	assert.Equal(t, 67, scored.Assessment.MatchPercentage)
	assert.Equal(t, placement.StatusPending, scored.Application.Status)

	appPath := "/api/v1/applications/" + scored.Application.ID
	rec = do(t, h, http.MethodPost, appPath+"/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, placement.StatusAccepted, decode[placement.Application](t, rec).Status)

	rec = do(t, h, http.MethodPost, appPath+"/reject", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, string(placement.KindConflict), body.Error.Kind)
	require.NotNil(t, body.Error.Current)
	assert.Equal(t, placement.StatusAccepted, body.Error.Current.Status)

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/"+jobID+"/applications?status=accepted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct {
		Applications []placement.Application `json:"applications"`
	}](t, rec)
	assert.Len(t, listed.Applications, 1)

	rec = do(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[placement.Stats](t, rec)
	assert.Equal(t, 1, stats.ByStatus[placement.StatusAccepted])
}

func TestRejectReturnsFeedback(t *testing.T) {
	h := newTestServer(t, defaultJudge())
	studentID, jobID := seed(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/applications/score", map[string]string{
		"studentId": studentID, "jobId": jobID, "resumeText": "Python, SQL",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	scored := decode[lifecycle.ScoreResult](t, rec)

	rec = do(t, h, http.MethodPost, "/api/v1/applications/"+scored.Application.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decode[lifecycle.RejectResult](t, rec)
	assert.Equal(t, "https://kubernetes.io/docs/", rejected.Feedback.ResourceLink)
	require.NotNil(t, rejected.Application.AIFeedback)
	assert.Equal(t, "Keep going!", *rejected.Application.AIFeedback)

	rec = do(t, h, http.MethodGet, "/api/v1/students/"+studentID+"/applications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name  string
		judge *replyJudge
		want  int
		kind  placement.Kind
	}{
		{name: "judge failure", judge: &replyJudge{err: errors.New("unavailable")}, want: http.StatusBadGateway, kind: placement.KindJudge},
		{name: "schema violation", judge: &replyJudge{score: `{"matchPercentage": 101}`}, want: http.StatusBadGateway, kind: placement.KindSchema},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, tc.judge)
			studentID, jobID := seed(t, h)

			rec := do(t, h, http.MethodPost, "/api/v1/applications/score", map[string]string{
				"studentId": studentID, "jobId": jobID, "resumeText": "x",
			})
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, string(tc.kind), decode[errorBody](t, rec).Error.Kind)
		})
	}

	h := newTestServer(t, defaultJudge())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/jobs/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/applications/nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/applications/score", map[string]string{"jobId": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/jobs", map[string]string{}).Code)

	_, jobID := seed(t, h)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/jobs/"+jobID+"/applications?status=maybe", nil).Code)
}

func TestStatusFor(t *testing.T) {
	timeout := placement.Errorf(placement.KindJudge, "judge", "timed out: %w", context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(timeout))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(placement.Errorf(placement.KindExtraction, "x", "y")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("wrapped: %w", errors.New("boom"))))
}

func multipartUpload(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadResume(t *testing.T) {
	h := newTestServer(t, defaultJudge())
	studentID, _ := seed(t, h)
	path := "/api/v1/students/" + studentID + "/resume"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, path, "file", "cv.pdf", []byte("%PDF-1.4 resume")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upload := decode[lifecycle.ResumeUpload](t, rec)
	assert.Equal(t, "Python SQL", upload.ResumeText)
	assert.True(t, strings.HasPrefix(upload.ResumeURL, "https://files.example.com/"+studentID+"/"), upload.ResumeURL)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, path, "file", "cv.txt", []byte("plain text")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, path, "document", "cv.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/api/v1/students/nope/resume", "file", "cv.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadResumeTooLarge(t *testing.T) {
	h := newTestServer(t, defaultJudge())
	studentID, _ := seed(t, h)
	path := "/api/v1/students/" + studentID + "/resume"

	cases := []struct {
		name string
		size int
	}{
		{name: "over document limit", size: 2048},
		{name: "over request limit", size: 3 << 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), tc.size)...)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, multipartUpload(t, path, "file", "cv.pdf", data))
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			body := decode[errorBody](t, rec)
			assert.Equal(t, string(placement.KindExtraction), body.Error.Kind)
			assert.Contains(t, body.Error.Message, "re-upload")
		})
	}
}

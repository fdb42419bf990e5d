package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/placement"
)

// multipart framing allowance on top of the document limit
const uploadOverhead = 1 << 20

func (s *Server) health(c *gin.Context) {
	if err := s.engine.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createJob(c *gin.Context) {
	var in lifecycle.NewJob
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, "http.create_job", err)
		return
	}
	if in.RecruiterID == "" {
		in.RecruiterID = c.GetHeader("X-User-ID")
	}

	job, err := s.engine.CreateJob(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.engine.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) listJobApplications(c *gin.Context) {
	var status placement.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed, err := placement.ParseStatus(raw)
		if err != nil {
			s.badRequest(c, "http.list_applications", err)
			return
		}
		status = parsed
	}

	apps, err := s.engine.ListForJob(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func (s *Server) registerStudent(c *gin.Context) {
	var in lifecycle.NewStudent
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, "http.register_student", err)
		return
	}

	student, err := s.engine.RegisterStudent(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (s *Server) uploadResume(c *gin.Context) {
	const op = "http.upload_resume"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+uploadOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, s.oversized(op))
			return
		}
		s.badRequest(c, op, fmt.Errorf("multipart field \"file\": %w", err))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	defer file.Close()

	// One byte past the limit lets the extractor report the oversize document.
	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		s.fail(c, s.oversized(op))
		return
	}

	upload, err := s.engine.AttachResume(c.Request.Context(), c.Param("id"), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, upload)
}

func (s *Server) oversized(op string) error {
	return placement.Errorf(placement.KindExtraction, op, "document exceeds %d bytes, please re-upload a smaller file", s.maxUploadBytes)
}

func (s *Server) listStudentApplications(c *gin.Context) {
	apps, err := s.engine.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func (s *Server) scoreResume(c *gin.Context) {
	var req lifecycle.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "http.score", err)
		return
	}

	res, err := s.engine.ScoreResume(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getApplication(c *gin.Context) {
	app, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) acceptApplication(c *gin.Context) {
	app, err := s.engine.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) rejectApplication(c *gin.Context) {
	res, err := s.engine.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

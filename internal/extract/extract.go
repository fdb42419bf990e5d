// Package extract turns uploaded resume documents into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/utils"
)

const (
	MIMEPDF = "application/pdf"

	// DefaultMaxBytes mirrors the storage bucket limit for uploaded resumes.
	DefaultMaxBytes int64 = 5 << 20

	op = "extract"
)

// Extractor reads PDF documents into normalised text.
type Extractor struct {
	maxBytes int64
	logger   *zap.Logger
}

// New returns an Extractor; maxBytes <= 0 selects DefaultMaxBytes.
func New(maxBytes int64, log *zap.Logger) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes, logger: logger.OrNop(log)}
}

// MaxBytes is the largest document Extract accepts.
func (e *Extractor) MaxBytes() int64 { return e.maxBytes }

// Extract returns the text of a document. The declared type may be empty,
// in which case content sniffing decides.
func (e *Extractor) Extract(ctx context.Context, data []byte, declaredMIME string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(data) == 0 {
		return "", placement.Errorf(placement.KindExtraction, op, "document is empty")
	}
	if int64(len(data)) > e.maxBytes {
		return "", placement.Errorf(placement.KindExtraction, op, "document is %d bytes, limit is %d", len(data), e.maxBytes)
	}

	declared, err := baseType(declaredMIME)
	if err != nil {
		return "", placement.Errorf(placement.KindExtraction, op, "invalid content type %q: %w", declaredMIME, err)
	}
	if declared != "" && declared != MIMEPDF {
		return "", placement.Errorf(placement.KindExtraction, op, "unsupported content type %q", declared)
	}

	detected := mimetype.Detect(data)
	if !detected.Is(MIMEPDF) {
		return "", placement.Errorf(placement.KindExtraction, op, "content is %s, not a PDF", detected.String())
	}

	text, err := readPDF(data)
	if err != nil {
		return "", placement.Errorf(placement.KindExtraction, op, "read pdf: %w", err)
	}

	text = utils.NormalizeLines(text)
	if text == "" {
		return "", placement.Errorf(placement.KindExtraction, op, "document contains no extractable text")
	}

	e.logger.Debug("document extracted",
		zap.Int("bytes", len(data)),
		zap.Int("text_runes", len([]rune(text))),
	)

	return text, nil
}

func baseType(declared string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", err
	}
	return strings.ToLower(mediaType), nil
}

func readPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(content)
	}

	return builder.String(), nil
}

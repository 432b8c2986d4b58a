package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/inkwellhq/inkwell/internal/core"
)

// DocconvExtractor implements core.TextExtractor using sajari/docconv.
// Extraction happens once at upload time; the ingestion pipeline only ever
// sees the normalized plain text stored on the document.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.TextExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts the uploaded bytes into normalized plain text: extracted
// body with CRLF folded and surrounding whitespace trimmed.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}

	text := strings.ReplaceAll(res.Body, "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

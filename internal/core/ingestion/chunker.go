package ingestion

import (
	"strings"
)

// Shape classifies the content of a document for chunking purposes.
type Shape int

const (
	// ShapeProse is free-flowing text split on paragraph boundaries.
	ShapeProse Shape = iota
	// ShapeCatalog is record-oriented text (product listings, exported
	// sheets) grouped by record count instead of paragraphs.
	ShapeCatalog
)

// ShapeDetector decides which chunking strategy applies to a document.
// The default detector sniffs for structural markers; callers can substitute
// their own without touching the coordinator.
type ShapeDetector interface {
	Detect(text string) Shape
}

// MarkerShapeDetector flags text as catalog-shaped when it carries markers
// typical of tabular exports: pipe-delimited columns, a currency symbol, or
// an explicit sheet label.
type MarkerShapeDetector struct{}

var _ ShapeDetector = MarkerShapeDetector{}

func (MarkerShapeDetector) Detect(text string) Shape {
	if strings.Contains(text, "|") ||
		strings.ContainsAny(text, "$€£¥") ||
		strings.Contains(strings.ToLower(text), "sheet") {
		return ShapeCatalog
	}
	return ShapeProse
}

// Chunker splits normalized document text into bounded chunks. Split is a
// pure function of its inputs; all sizes are in runes.
type Chunker struct {
	MaxChunkSize   int // upper bound per chunk (default 4000)
	Overlap        int // prose overlap carried across boundaries (default 100)
	MinChunkChars  int // chunks trimmed below this floor are dropped (default 50)
	MaxChunks      int // safety cap per document (default 500)
	CatalogRecords int // records per chunk in catalog mode (default 20)
	Detector       ShapeDetector
}

// NewChunker returns a Chunker with the given bounds and the marker-based
// shape detector. Non-positive arguments fall back to the defaults.
func NewChunker(maxChunkSize, overlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 4000
	}
	if overlap < 0 {
		overlap = 100
	}
	return &Chunker{
		MaxChunkSize:   maxChunkSize,
		Overlap:        overlap,
		MinChunkChars:  50,
		MaxChunks:      500,
		CatalogRecords: 20,
		Detector:       MarkerShapeDetector{},
	}
}

// Split produces the ordered chunk sequence for text. It never returns an
// empty sequence for non-empty input.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// Small-document fast path.
	if runeLen(text) <= c.MaxChunkSize {
		return []string{trimmed}
	}

	var chunks []string
	switch c.Detector.Detect(text) {
	case ShapeCatalog:
		chunks = c.splitCatalog(text)
	default:
		chunks = c.splitProse(text)
	}

	chunks = c.postFilter(chunks)

	if len(chunks) > c.MaxChunks {
		chunks = chunks[:c.MaxChunks]
	}

	// Non-empty input must always yield at least one chunk.
	if len(chunks) == 0 {
		chunks = []string{strings.TrimSpace(truncateRunes(trimmed, c.MaxChunkSize))}
	}
	return chunks
}

// splitCatalog groups separator-bearing lines into record-counted chunks,
// carrying a detected header line across chunk boundaries as a context
// anchor.
func (c *Chunker) splitCatalog(text string) []string {
	lines := strings.Split(text, "\n")

	var (
		chunks  []string
		cur     []string
		curLen  int
		records int
		seeded  string // header carried into the current chunk, if any
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		closed := strings.Join(cur, "\n")
		chunks = append(chunks, closed)

		cur = cur[:0]
		curLen = 0
		records = 0
		seeded = ""

		// Seed the next chunk with the closed chunk's header, if any.
		if header, ok := headerLine(closed); ok {
			cur = append(cur, header)
			curLen = runeLen(header)
			seeded = header
		}
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		lineLen := runeLen(line)
		if len(cur) > 0 && curLen+1+lineLen > c.MaxChunkSize {
			flush()
		}

		cur = append(cur, line)
		curLen += lineLen
		if len(cur) > 1 {
			curLen++ // joining newline
		}
		if isRecordLine(line) {
			records++
		}

		if records >= c.CatalogRecords {
			flush()
		}
	}
	// Flush the tail unless it is only the carried header.
	if len(cur) > 0 && !(len(cur) == 1 && cur[0] == seeded) {
		chunks = append(chunks, strings.Join(cur, "\n"))
	}
	return chunks
}

// splitProse accumulates paragraphs up to the size bound, carrying an
// Overlap-sized suffix of each closed chunk into the next. Paragraphs that
// alone exceed the bound are expanded into sentence units, which also covers
// the giant-single-paragraph case (all chunks then come from sentences).
func (c *Chunker) splitProse(text string) []string {
	units := proseUnits(text, c.MaxChunkSize)

	var (
		chunks []string
		cur    strings.Builder
	)

	for _, u := range units {
		if cur.Len() > 0 && runeLen(cur.String())+runeLen(u.sep)+runeLen(u.text) > c.MaxChunkSize {
			closed := cur.String()
			chunks = append(chunks, closed)
			cur.Reset()
			if c.Overlap > 0 {
				cur.WriteString(tailRunes(closed, c.Overlap))
			}
		}
		if cur.Len() > 0 {
			cur.WriteString(u.sep)
		}
		cur.WriteString(u.text)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func (c *Chunker) postFilter(chunks []string) []string {
	out := chunks[:0]
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if runeLen(ch) < c.MinChunkChars {
			continue
		}
		out = append(out, truncateRunes(ch, c.MaxChunkSize))
	}
	return out
}

// proseUnit is one accumulation unit: a paragraph, or a sentence when the
// enclosing paragraph is too large to place whole.
type proseUnit struct {
	text string
	sep  string // separator written before the unit mid-chunk
}

func proseUnits(text string, maxSize int) []proseUnit {
	var units []proseUnit
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runeLen(para) <= maxSize {
			units = append(units, proseUnit{text: para, sep: "\n\n"})
			continue
		}
		for _, sentence := range strings.SplitAfter(para, ". ") {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			units = append(units, proseUnit{text: sentence, sep: " "})
		}
	}
	return units
}

// isRecordLine reports whether a line counts as one catalog record.
func isRecordLine(line string) bool {
	return strings.Contains(line, "|")
}

// headerLine returns the first line of a chunk when it looks like a table
// header: it has column separators but no digits.
func headerLine(chunk string) (string, bool) {
	first := chunk
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		first = chunk[:i]
	}
	if !strings.Contains(first, "|") {
		return "", false
	}
	if strings.ContainsAny(first, "0123456789") {
		return "", false
	}
	return first, true
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

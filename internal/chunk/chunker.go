// Package chunk splits raw document text into token-bounded, content-aware
// segments ready for embedding.
//
// Splitting is paragraph-first: paragraphs accumulate into a chunk until the
// running token estimate would exceed the effective target, and any single
// paragraph larger than the target is re-split by sentence. The last unit of
// each chunk is carried into the next one as overlap context, and a detected
// section header is prefixed to every chunk so each segment stays
// interpretable on its own.
package chunk

import (
	"regexp"
	"strings"
)

// ContentType declares how a document should be segmented.
type ContentType string

// Content types accepted by the chunker. Auto triggers classification from
// structural markers.
const (
	ContentAuto      ContentType = "auto"
	ContentTechnical ContentType = "technical"
	ContentNarrative ContentType = "narrative"
	ContentMixed     ContentType = "mixed"
)

// Chunk is one token-bounded segment of a document.
//
// Header and Overlap are injected context: concatenating Body fields in
// Index order reconstructs the original text coverage.
type Chunk struct {
	Index     int    // 0-based position within the document
	Total     int    // final chunk count, identical on every chunk
	Header    string // detected section header, empty if none
	Overlap   string // trailing unit of the previous chunk, empty on the first
	Body      string // the chunk's own units
	EstTokens int    // token estimate of Text()
}

// Text returns the embedding payload: header and overlap context followed by
// the chunk body.
func (c Chunk) Text() string {
	parts := make([]string, 0, 3)
	if c.Header != "" {
		parts = append(parts, c.Header)
	}
	if c.Overlap != "" {
		parts = append(parts, c.Overlap)
	}
	parts = append(parts, c.Body)
	return strings.Join(parts, "\n\n")
}

// Option configures a Chunker using the functional options pattern.
type Option func(*Chunker)

// WithTokenRange sets the minimum and maximum token targets. The effective
// target within the range depends on the detected content type.
func WithTokenRange(minTokens, maxTokens int) Option {
	return func(c *Chunker) {
		if minTokens > 0 {
			c.minTokens = minTokens
		}
		if maxTokens >= c.minTokens {
			c.maxTokens = maxTokens
		}
	}
}

// WithContentType declares the content type, skipping auto classification.
func WithContentType(ct ContentType) Option {
	return func(c *Chunker) {
		c.contentType = ct
	}
}

// WithoutOverlap disables carrying the previous unit into the next chunk.
func WithoutOverlap() Option {
	return func(c *Chunker) {
		c.overlap = false
	}
}

// Default token targets. Derived from embedding-model input limits: the
// maximum keeps a chunk comfortably under one embedding call, the minimum
// avoids fragments too small to carry meaning.
const (
	DefaultMinTokens = 200
	DefaultMaxTokens = 500
)

// Chunker splits document text. Safe for concurrent use: Split does not
// mutate Chunker state.
type Chunker struct {
	minTokens   int
	maxTokens   int
	overlap     bool
	contentType ContentType
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minTokens:   DefaultMinTokens,
		maxTokens:   DefaultMaxTokens,
		overlap:     true,
		contentType: ContentAuto,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceSplit  = regexp.MustCompile(`(?U)([^.!?]+[.!?]+\s*)`)
	headerPattern  = regexp.MustCompile(`^#{1,6}\s+\S`)

	// codeMarkers are structural tokens characteristic of technical text.
	codeMarkers = []string{"```", "{", "};", "()", ":=", "=>", "</", "---", "|"}

	// imperativeWords open instruction-style sentences in technical prose.
	imperativeWords = []string{"install", "run", "configure", "set", "execute",
		"ensure", "apply", "define", "specify", "submit", "disclose"}

	// outcomeVerbs are characteristic of narrative, results-oriented prose.
	outcomeVerbs = []string{"achieved", "resulted", "delivered", "improved",
		"reduced", "led to", "showed", "revealed", "found that", "concluded"}
)

// EstimateTokens approximates the token count of text. The four-characters-
// per-token heuristic matches the budgeting the embedding provider uses for
// English prose closely enough for chunk sizing.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Split segments text into ordered chunks. Empty or whitespace-only input
// yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	header, rest := detectHeader(text)
	target := c.effectiveTarget(rest)

	units := c.units(rest, target)
	if len(units) == 0 {
		return nil
	}

	var chunks []Chunk
	var body []string
	bodyTokens := 0

	flush := func() {
		if len(body) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Body: strings.Join(body, "\n\n")})
		body = nil
		bodyTokens = 0
	}

	for _, u := range units {
		ut := EstimateTokens(u)
		if len(body) > 0 && bodyTokens+ut > target {
			flush()
		}
		// A single unit larger than the target becomes its own chunk;
		// grossly oversized sentences are not split further.
		body = append(body, u)
		bodyTokens += ut
		if ut > target {
			flush()
		}
	}
	flush()

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
		chunks[i].Header = header
		if c.overlap && i > 0 {
			prev := chunks[i-1].Body
			if idx := strings.LastIndex(prev, "\n\n"); idx >= 0 {
				chunks[i].Overlap = prev[idx+2:]
			} else {
				chunks[i].Overlap = prev
			}
		}
		chunks[i].EstTokens = EstimateTokens(chunks[i].Text())
	}

	return chunks
}

// effectiveTarget picks the token target for the detected content type:
// smaller chunks for technical text, larger for narrative, midpoint for mixed.
func (c *Chunker) effectiveTarget(text string) int {
	ct := c.contentType
	if ct == ContentAuto || ct == "" {
		ct = Classify(text)
	}
	switch ct {
	case ContentTechnical:
		return c.minTokens
	case ContentNarrative:
		return c.maxTokens
	default:
		return (c.minTokens + c.maxTokens) / 2
	}
}

// Classify inspects structural markers to decide whether text reads as
// technical, narrative, or mixed.
func Classify(text string) ContentType {
	lower := strings.ToLower(text)

	technical := 0
	for _, m := range codeMarkers {
		technical += strings.Count(text, m)
	}
	for _, w := range imperativeWords {
		technical += strings.Count(lower, w+" ")
	}

	narrative := len(sentenceSplit.FindAllString(text, -1))
	for _, v := range outcomeVerbs {
		narrative += 2 * strings.Count(lower, v)
	}

	switch {
	case technical > narrative*2:
		return ContentTechnical
	case narrative > technical*2:
		return ContentNarrative
	default:
		return ContentMixed
	}
}

// detectHeader returns a leading markdown heading and the remaining text.
// The heading is re-injected into every chunk for context preservation.
func detectHeader(text string) (header, rest string) {
	line, remainder, found := strings.Cut(text, "\n")
	if !found {
		return "", text
	}
	line = strings.TrimSpace(line)
	if headerPattern.MatchString(line) {
		return line, strings.TrimSpace(remainder)
	}
	return "", text
}

// units produces the accumulation units: paragraphs, with any paragraph
// exceeding the target re-split into sentences.
func (c *Chunker) units(text string, target int) []string {
	var units []string
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if EstimateTokens(p) <= target {
			units = append(units, p)
			continue
		}
		units = append(units, sentences(p)...)
	}
	return units
}

// sentences splits a paragraph at sentence boundaries. Text after the last
// terminal punctuation is kept as a final unit so nothing is dropped.
func sentences(p string) []string {
	matches := sentenceSplit.FindAllStringIndex(p, -1)
	if len(matches) == 0 {
		return []string{p}
	}

	var out []string
	last := 0
	for _, m := range matches {
		// Slice from the previous match end so stray punctuation between
		// matches stays attached to the following sentence.
		s := strings.TrimSpace(p[last:m[1]])
		if s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(p[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

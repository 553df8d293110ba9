package livectx

// Ref identifies one source used in the summary. Every Ref is traceable to
// a retrieved chunk or an external result supplied to the engine.
type Ref struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FreshnessKind classifies how an external development relates to the
// indexed knowledge.
type FreshnessKind string

const (
	// FreshnessReinforces marks external coverage that confirms what the
	// indexed documents already say.
	FreshnessReinforces FreshnessKind = "reinforces"

	// FreshnessChallenges marks external coverage that disputes it.
	FreshnessChallenges FreshnessKind = "challenges"

	// FreshnessEmerging marks developments the indexed documents do not
	// cover yet.
	FreshnessEmerging FreshnessKind = "emerging"
)

// Severity rates how strongly an internal and an external source disagree.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FreshnessSignal is one observation about how current the indexed
// knowledge is, backed by source references.
type FreshnessSignal struct {
	Kind      FreshnessKind `json:"kind"`
	Statement string        `json:"statement"`
	Refs      []Ref         `json:"refs"`
}

// Contradiction pairs an internal source against an external one that
// disputes it.
type Contradiction struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Internal    Ref      `json:"internal"`
	External    Ref      `json:"external"`
}

// Summary is the fused internal-plus-external picture for one query.
// Fallback is true when the model output could not be used and the summary
// was assembled deterministically from the top sources instead.
type Summary struct {
	Headline       string            `json:"headline"`
	Synthesis      string            `json:"synthesis"`
	Internal       []Ref             `json:"internal"`
	External       []Ref             `json:"external"`
	Freshness      []FreshnessSignal `json:"freshness,omitempty"`
	Contradictions []Contradiction   `json:"contradictions,omitempty"`
	Fallback       bool              `json:"fallback,omitempty"`
}

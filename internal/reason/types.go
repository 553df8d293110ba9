package reason

// ConnectionKind is the fixed taxonomy of document relationships.
type ConnectionKind string

const (
	KindCausal        ConnectionKind = "causal"
	KindTemporal      ConnectionKind = "temporal"
	KindThematic      ConnectionKind = "thematic"
	KindContradictory ConnectionKind = "contradictory"
	KindComplementary ConnectionKind = "complementary"
)

var connectionKinds = map[ConnectionKind]bool{
	KindCausal:        true,
	KindTemporal:      true,
	KindThematic:      true,
	KindContradictory: true,
	KindComplementary: true,
}

// Connection relates two retrieved documents.
type Connection struct {
	Kind         ConnectionKind `json:"kind"`
	DocA         string         `json:"docA"`
	DocB         string         `json:"docB"`
	Relationship string         `json:"relationship"`
	Insight      string         `json:"insight"`
	Confidence   float64        `json:"confidence"`
}

// Period is an inclusive year range.
type Period struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// EvolutionShift is one phase in how a topic developed over time. Shifts
// are returned ordered by Period.From ascending.
type EvolutionShift struct {
	Phase              string   `json:"phase"`
	Period             Period   `json:"period"`
	Summary            string   `json:"summary"`
	Drivers            []string `json:"drivers"`
	RepresentativeDocs []string `json:"representativeDocs"`
}

// PredictiveScenario is one plausible forward projection.
type PredictiveScenario struct {
	Scenario          string   `json:"scenario"`
	Projection        string   `json:"projection"`
	Confidence        float64  `json:"confidence"`
	LeadingIndicators []string `json:"leadingIndicators"`
	References        []string `json:"references"`
}

// Principle is the fixed rubric the alignment pass scores against.
type Principle string

const (
	PrincipleDisclosure     Principle = "disclosure"
	PrincipleParticipation  Principle = "participation"
	PrincipleAccountability Principle = "accountability"
	PrincipleValueForMoney  Principle = "value-for-money"
	PrincipleSustainability Principle = "sustainability"
)

// Principles lists the rubric in scoring order.
var Principles = []Principle{
	PrincipleDisclosure,
	PrincipleParticipation,
	PrincipleAccountability,
	PrincipleValueForMoney,
	PrincipleSustainability,
}

var principleSet = map[Principle]bool{
	PrincipleDisclosure:     true,
	PrincipleParticipation:  true,
	PrincipleAccountability: true,
	PrincipleValueForMoney:  true,
	PrincipleSustainability: true,
}

// PrincipleScore grades one principle on a 0 to 10 scale.
type PrincipleScore struct {
	Principle Principle `json:"principle"`
	Score     float64   `json:"score"`
	Evidence  string    `json:"evidence,omitempty"`
}

// AlignmentReport grades the retrieved evidence against the governance
// rubric.
type AlignmentReport struct {
	OverallScore       float64          `json:"overallScore"`
	PerPrinciple       []PrincipleScore `json:"perPrincipleScores"`
	Risks              []string         `json:"risks"`
	StakeholderBalance []string         `json:"stakeholderBalance"`

	// Fallback is true when the model output was unusable and the report
	// carries neutral placeholder values.
	Fallback bool `json:"fallback,omitempty"`
}

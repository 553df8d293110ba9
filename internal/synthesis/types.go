package synthesis

// Snippet is one retrieved passage presented to the model, numbered from 1
// in the order the results were ranked.
type Snippet struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Year   int    `json:"year,omitempty"`
	Text   string `json:"text"`
}

// Citation points a bullet back at the snippet that supports it.
type Citation struct {
	Snippet int    `json:"snippet"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Bullet is one synthesized finding with at least one citation.
type Bullet struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Answer is the synthesized summary for a query.
type Answer struct {
	Bullets []Bullet `json:"bullets"`
}

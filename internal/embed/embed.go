// Package embed defines the inbound notification payload and its validation
// rules. Validation is a pure function over a decoded payload: it checks
// structure (required fields, minimum field count), membership (allowed
// colors and field names), and content (a case-insensitive blacklist scan),
// returning a Violation describing the first rule that failed.
package embed

// Payload is the body of an inbound notification request. Only the first
// embed is inspected by the gate; the full slice is forwarded downstream
// untouched.
type Payload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a single rich-content block.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       *int    `json:"color,omitempty"`
	Fields      []Field `json:"fields"`
}

// Field is one name/value entry inside an embed. Inline is optional and
// kept as a pointer so "absent" and "false" stay distinguishable on
// re-serialization.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline *bool  `json:"inline,omitempty"`
}

// First returns the embed the gate inspects, or false if the payload
// carries none.
func (p Payload) First() (Embed, bool) {
	if len(p.Embeds) == 0 {
		return Embed{}, false
	}
	return p.Embeds[0], true
}

// Package generate defines the Provider interface for single-shot content
// generation: a prompt plus optional attachments in, text out. When a
// [Schema] is supplied the model is asked to answer with JSON matching it;
// when [Grounding] is set the answer may be grounded in web or maps results.
//
// Implementations must be safe for concurrent use.
package generate

import "context"

// Type is the JSON type of a [Schema] node.
type Type string

const (
	TypeObject  Type = "OBJECT"
	TypeArray   Type = "ARRAY"
	TypeString  Type = "STRING"
	TypeBoolean Type = "BOOLEAN"
	TypeNumber  Type = "NUMBER"
	TypeInteger Type = "INTEGER"
)

// Schema describes the JSON value the model must return.
type Schema struct {
	Type        Type
	Description string

	// Properties and Required apply to TypeObject.
	Properties map[string]*Schema
	Required   []string

	// Items applies to TypeArray.
	Items *Schema
}

// Attachment is an inline binary part sent alongside the prompt, such as an
// image to be inspected.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Grounding selects the retrieval tool the model may use.
type Grounding int

const (
	GroundingNone Grounding = iota
	GroundingMaps
	GroundingSearch
)

// LatLng is a geographic position in degrees.
type LatLng struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Request is a single generation call.
type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Prompt is the user text.
	Prompt string

	// SystemInstruction is an optional persona or task framing.
	SystemInstruction string

	Attachments []Attachment

	// Schema requests a JSON answer of this shape. Nil means free text.
	Schema *Schema

	Grounding Grounding

	// Location biases maps grounding. Ignored unless Grounding is
	// GroundingMaps.
	Location *LatLng
}

// Source is a grounding reference returned with a response.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Response is the result of a generation call.
type Response struct {
	// Text is the concatenated text of the first candidate. It is JSON when
	// the request carried a Schema.
	Text string

	// Sources lists grounding references, if any.
	Sources []Source
}

// Provider performs generation calls.
type Provider interface {
	// Generate submits req and returns the model's answer. An empty answer is
	// not an error; callers decide how to treat it.
	Generate(ctx context.Context, req Request) (*Response, error)
}

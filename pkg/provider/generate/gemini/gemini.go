// Package gemini implements [generate.Provider] on top of the Google Gen AI
// SDK (google.golang.org/genai) using the Gemini Developer API backend.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/dost/pkg/provider/generate"
)

// DefaultModel is used when neither the provider nor the request names one.
const DefaultModel = "gemini-3-flash-preview"

// ErrNoAPIKey is returned by New when the API key is empty.
var ErrNoAPIKey = errors.New("gemini: api key is required")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider is a genai-backed [generate.Provider].
type Provider struct {
	client  *genai.Client
	model   string
	baseURL string
}

var _ generate.Provider = (*Provider)(nil)

// New creates a Provider. No network traffic happens until Generate.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client
	return p, nil
}

// Model returns the default model name.
func (p *Provider) Model() string { return p.model }

// Generate implements [generate.Provider].
func (p *Provider) Generate(ctx context.Context, req generate.Request) (*generate.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	parts := make([]*genai.Part, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return toResponse(resp), nil
}

func buildConfig(req generate.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(req.Schema)
	}

	switch req.Grounding {
	case generate.GroundingMaps:
		cfg.Tools = []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}}
		if req.Location != nil {
			cfg.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{
						Latitude:  genai.Ptr(req.Location.Latitude),
						Longitude: genai.Ptr(req.Location.Longitude),
					},
				},
			}
		}
	case generate.GroundingSearch:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

func toSchema(s *generate.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}

func toResponse(resp *genai.GenerateContentResponse) *generate.Response {
	out := &generate.Response{Text: resp.Text()}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return out
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		switch {
		case chunk == nil:
		case chunk.Maps != nil:
			out.Sources = append(out.Sources, generate.Source{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		case chunk.Web != nil:
			out.Sources = append(out.Sources, generate.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}

package wellness

import (
	"context"
	"fmt"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// LocationDeniedNotice is shown when the search runs without the user's
// position.
const LocationDeniedNotice = "Location denied. Showing premium global experts."

const (
	nearbyPrompt = "Find high-rated mental health counselors and psychology clinics near this location."
	globalPrompt = "Find high-rated mental health counselors and online therapy services that work with clients internationally."
)

// CounselorResults is the answer of a counselor search.
type CounselorResults struct {
	Text    string            `json:"text"`
	Sources []generate.Source `json:"sources"`

	// Degraded is set when no location was available and the search fell
	// back to global experts.
	Degraded bool   `json:"degraded"`
	Notice   string `json:"notice,omitempty"`
}

// SearchCounselors looks up counselors near loc using maps grounding. A nil
// loc means the user denied location access: the search then runs globally
// with web grounding and the result is flagged as degraded.
func (s *Service) SearchCounselors(ctx context.Context, loc *generate.LatLng) (CounselorResults, error) {
	req := generate.Request{Model: s.Models().Search}
	var out CounselorResults
	if loc != nil {
		req.Prompt = nearbyPrompt
		req.Grounding = generate.GroundingMaps
		req.Location = loc
	} else {
		req.Prompt = globalPrompt
		req.Grounding = generate.GroundingSearch
		out.Degraded = true
		out.Notice = LocationDeniedNotice
	}

	ctx, span := observe.StartSpan(ctx, "wellness.search_counselors")
	resp, err := s.gen.Generate(ctx, req)
	observe.EndSpan(span, err)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "generate", "search")
		return CounselorResults{}, fmt.Errorf("wellness: search counselors: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, "generate", "search", "ok")

	out.Text = resp.Text
	out.Sources = resp.Sources
	if out.Sources == nil {
		out.Sources = []generate.Source{}
	}
	return out, nil
}

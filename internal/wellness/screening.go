package wellness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/dost/internal/structured"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// Test identifies a screening questionnaire.
type Test string

const (
	GAD7 Test = "GAD7"
	PHQ9 Test = "PHQ9"
)

// ErrUnknownTest and ErrInvalidAnswers are returned by [Score].
var (
	ErrUnknownTest    = errors.New("wellness: unknown screening test")
	ErrInvalidAnswers = errors.New("wellness: invalid answers")
)

// AnswerOptions are the choices for every item, worth 0..3 points.
var AnswerOptions = []string{"Not at all", "Several days", "More than half", "Nearly every day"}

var questions = map[Test][]string{
	GAD7: {
		"Feeling nervous, anxious, or on edge?",
		"Not being able to stop or control worrying?",
		"Worrying too much about different things?",
		"Trouble relaxing?",
		"Being so restless that it is hard to sit still?",
		"Becoming easily annoyed or irritable?",
		"Feeling afraid, as if something awful might happen?",
	},
	PHQ9: {
		"Little interest or pleasure in doing things?",
		"Feeling down, depressed, or hopeless?",
		"Trouble falling or staying asleep, or sleeping too much?",
		"Feeling tired or having little energy?",
		"Poor appetite or overeating?",
		"Feeling bad about yourself or that you are a failure?",
		"Trouble concentrating on things?",
		"Moving or speaking so slowly that other people could have noticed?",
		"Thoughts that you would be better off dead?",
	},
}

// ParseTest accepts "GAD7", "gad-7", "PHQ9", "phq-9" and similar spellings.
func ParseTest(s string) (Test, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "")) {
	case "GAD7":
		return GAD7, nil
	case "PHQ9":
		return PHQ9, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTest, s)
}

// Questions returns the items of test in order.
func Questions(test Test) []string {
	return append([]string(nil), questions[test]...)
}

// MaxScore is the highest possible total for test.
func MaxScore(test Test) int {
	return len(questions[test]) * (len(AnswerOptions) - 1)
}

// Score validates one answer per item and returns the total.
func Score(test Test, answers []int) (int, error) {
	items, ok := questions[test]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTest, test)
	}
	if len(answers) != len(items) {
		return 0, fmt.Errorf("%w: %s has %d items, got %d answers", ErrInvalidAnswers, test, len(items), len(answers))
	}
	total := 0
	for i, a := range answers {
		if a < 0 || a >= len(AnswerOptions) {
			return 0, fmt.Errorf("%w: answer %d is %d, want 0..%d", ErrInvalidAnswers, i+1, a, len(AnswerOptions)-1)
		}
		total += a
	}
	return total, nil
}

// Severity maps a total to the standard band label.
func Severity(test Test, score int) string {
	switch {
	case score < 5:
		return "Minimal"
	case score < 10:
		return "Mild"
	case score < 15:
		return "Moderate"
	case test == PHQ9 && score < 20:
		return "Moderately Severe"
	default:
		return "Severe"
	}
}

// BreathingExercise is a guided breathing suggestion.
type BreathingExercise struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

// MicroHabit is a small daily habit suggestion.
type MicroHabit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Recommendation is the analysis of a screening score.
type Recommendation struct {
	ShouldSeeTherapist  bool                `json:"shouldSeeTherapist"`
	PredictionReasoning string              `json:"predictionReasoning"`
	SeverityLabel       string              `json:"severityLabel"`
	BreathingExercises  []BreathingExercise `json:"breathingExercises"`
	MicroHabits         []MicroHabit        `json:"microHabits"`
}

// therapistThreshold is the score from which professional support is
// recommended on either questionnaire.
const therapistThreshold = 10

func stringField() *generate.Schema { return &generate.Schema{Type: generate.TypeString} }

var recommendationSchema = &generate.Schema{
	Type: generate.TypeObject,
	Properties: map[string]*generate.Schema{
		"shouldSeeTherapist":  {Type: generate.TypeBoolean},
		"predictionReasoning": stringField(),
		"severityLabel":       stringField(),
		"breathingExercises": {
			Type: generate.TypeArray,
			Items: &generate.Schema{
				Type: generate.TypeObject,
				Properties: map[string]*generate.Schema{
					"title":       stringField(),
					"description": stringField(),
					"duration":    stringField(),
				},
				Required: []string{"title", "description", "duration"},
			},
		},
		"microHabits": {
			Type: generate.TypeArray,
			Items: &generate.Schema{
				Type: generate.TypeObject,
				Properties: map[string]*generate.Schema{
					"title":       stringField(),
					"description": stringField(),
					"category":    stringField(),
				},
				Required: []string{"title", "description", "category"},
			},
		},
	},
	Required: []string{"shouldSeeTherapist", "predictionReasoning", "severityLabel", "breathingExercises", "microHabits"},
}

// DefaultRecommendation is the conservative analysis used when the model
// gives no usable answer.
func DefaultRecommendation(test Test, score int) Recommendation {
	return Recommendation{
		ShouldSeeTherapist:  score >= therapistThreshold,
		PredictionReasoning: fmt.Sprintf("Automated analysis is unavailable. A %s score of %d/%d falls in the %s range.", test, score, MaxScore(test), strings.ToLower(Severity(test, score))),
		SeverityLabel:       Severity(test, score),
		BreathingExercises:  []BreathingExercise{},
		MicroHabits:         []MicroHabit{},
	}
}

// AnalyzeScreening asks the model to interpret score on test. It never fails
// for model problems: a malformed or missing answer yields
// [DefaultRecommendation]. Only invalid input is reported as an error.
func (s *Service) AnalyzeScreening(ctx context.Context, test Test, score int) (Recommendation, error) {
	if _, ok := questions[test]; !ok {
		return Recommendation{}, fmt.Errorf("%w: %q", ErrUnknownTest, test)
	}
	if score < 0 || score > MaxScore(test) {
		return Recommendation{}, fmt.Errorf("%w: score %d outside 0..%d", ErrInvalidAnswers, score, MaxScore(test))
	}

	req := generate.Request{
		Model:  s.Models().Screening,
		Prompt: fmt.Sprintf("Analyze %s score: %d/%d. Return JSON.", test, score, MaxScore(test)),
		Schema: recommendationSchema,
	}
	rec, err := structured.Call(ctx, s.gen, req, DefaultRecommendation(test, score),
		structured.WithOperation("screening"), structured.WithMetrics(s.metrics))
	if err != nil {
		slog.Warn("wellness: screening analysis degraded", "test", test, "score", score, "err", err)
	}
	return rec, nil
}

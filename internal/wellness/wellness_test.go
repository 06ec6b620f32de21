package wellness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/dost/pkg/provider/generate"
	"github.com/MrWong99/dost/pkg/provider/generate/mock"
)

// ── Screening ────────────────────────────────────────────────────────────────

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		test    Test
		answers []int
		want    int
		wantErr error
	}{
		{"gad7 all zero", GAD7, []int{0, 0, 0, 0, 0, 0, 0}, 0, nil},
		{"gad7 max", GAD7, []int{3, 3, 3, 3, 3, 3, 3}, 21, nil},
		{"phq9 mixed", PHQ9, []int{1, 2, 0, 3, 1, 0, 2, 1, 0}, 10, nil},
		{"phq9 max", PHQ9, []int{3, 3, 3, 3, 3, 3, 3, 3, 3}, 27, nil},
		{"too few answers", GAD7, []int{1, 2}, 0, ErrInvalidAnswers},
		{"answer out of range", GAD7, []int{0, 0, 0, 4, 0, 0, 0}, 0, ErrInvalidAnswers},
		{"negative answer", PHQ9, []int{0, 0, 0, 0, -1, 0, 0, 0, 0}, 0, ErrInvalidAnswers},
		{"unknown test", Test("BDI"), []int{0}, 0, ErrUnknownTest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.test, tt.answers)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Score error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseTest(t *testing.T) {
	for in, want := range map[string]Test{"GAD7": GAD7, "gad-7": GAD7, "PHQ-9": PHQ9, "phq9": PHQ9} {
		got, err := ParseTest(in)
		if err != nil || got != want {
			t.Errorf("ParseTest(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTest("mmpi"); !errors.Is(err, ErrUnknownTest) {
		t.Errorf("ParseTest(mmpi) error = %v, want ErrUnknownTest", err)
	}
}

func TestMaxScoreAndQuestions(t *testing.T) {
	if MaxScore(GAD7) != 21 || MaxScore(PHQ9) != 27 {
		t.Errorf("MaxScore = %d/%d, want 21/27", MaxScore(GAD7), MaxScore(PHQ9))
	}
	if n := len(Questions(PHQ9)); n != 9 {
		t.Errorf("PHQ9 questions = %d, want 9", n)
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		test  Test
		score int
		want  string
	}{
		{GAD7, 0, "Minimal"},
		{GAD7, 5, "Mild"},
		{GAD7, 10, "Moderate"},
		{GAD7, 15, "Severe"},
		{PHQ9, 15, "Moderately Severe"},
		{PHQ9, 20, "Severe"},
	}
	for _, tt := range tests {
		if got := Severity(tt.test, tt.score); got != tt.want {
			t.Errorf("Severity(%s, %d) = %q, want %q", tt.test, tt.score, got, tt.want)
		}
	}
}

func TestAnalyzeScreening_ParsesModelAnswer(t *testing.T) {
	p := (&mock.Provider{}).Reply(`{
		"shouldSeeTherapist": true,
		"predictionReasoning": "Persistent worry most days.",
		"severityLabel": "Moderate Anxiety",
		"breathingExercises": [{"title":"Box Breathing","description":"4-4-4-4","duration":"4 min"}],
		"microHabits": [{"title":"Sunlight","description":"Ten minutes outside","category":"Routine"}]
	}`)
	svc := New(p)

	rec, err := svc.AnalyzeScreening(context.Background(), GAD7, 12)
	if err != nil {
		t.Fatalf("AnalyzeScreening: %v", err)
	}
	if !rec.ShouldSeeTherapist || rec.SeverityLabel != "Moderate Anxiety" {
		t.Errorf("rec = %+v", rec)
	}
	if len(rec.BreathingExercises) != 1 || rec.BreathingExercises[0].Duration != "4 min" {
		t.Errorf("BreathingExercises = %+v", rec.BreathingExercises)
	}

	req := p.LastRequest()
	if req.Prompt != "Analyze GAD7 score: 12/21. Return JSON." {
		t.Errorf("Prompt = %q", req.Prompt)
	}
	if req.Model != DefaultModels.Screening {
		t.Errorf("Model = %q, want %q", req.Model, DefaultModels.Screening)
	}
	if req.Schema == nil || len(req.Schema.Required) != 5 {
		t.Errorf("Schema = %+v, want five required fields", req.Schema)
	}
}

func TestAnalyzeScreening_MalformedYieldsDefault(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"truncated", `{"shouldSeeTherapist": tr`},
		{"missing fields", `{"shouldSeeTherapist": false}`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New((&mock.Provider{}).Reply(tt.reply))

			rec, err := svc.AnalyzeScreening(context.Background(), PHQ9, 16)
			if err != nil {
				t.Fatalf("AnalyzeScreening: %v", err)
			}
			want := DefaultRecommendation(PHQ9, 16)
			if rec.ShouldSeeTherapist != want.ShouldSeeTherapist || rec.SeverityLabel != "Moderately Severe" {
				t.Errorf("rec = %+v, want default %+v", rec, want)
			}
			if rec.BreathingExercises == nil || rec.MicroHabits == nil {
				t.Error("default lists must be empty, not nil")
			}
		})
	}
}

func TestAnalyzeScreening_ProviderErrorYieldsDefault(t *testing.T) {
	svc := New((&mock.Provider{}).Fail(errors.New("unavailable")))
	rec, err := svc.AnalyzeScreening(context.Background(), GAD7, 3)
	if err != nil {
		t.Fatalf("AnalyzeScreening: %v", err)
	}
	if rec.ShouldSeeTherapist || rec.SeverityLabel != "Minimal" {
		t.Errorf("rec = %+v, want minimal default", rec)
	}
}

func TestAnalyzeScreening_RejectsInvalidScore(t *testing.T) {
	svc := New(&mock.Provider{})
	if _, err := svc.AnalyzeScreening(context.Background(), GAD7, 22); !errors.Is(err, ErrInvalidAnswers) {
		t.Errorf("error = %v, want ErrInvalidAnswers", err)
	}
	if _, err := svc.AnalyzeScreening(context.Background(), Test("X"), 1); !errors.Is(err, ErrUnknownTest) {
		t.Errorf("error = %v, want ErrUnknownTest", err)
	}
}

// ── Moderation ───────────────────────────────────────────────────────────────

func TestModerate(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  Verdict
	}{
		{"safe", `{"safe":true}`, nil, Verdict{Safe: true}},
		{"unsafe with reason", `{"safe":false,"reason":"Targeted harassment."}`, nil, Verdict{Reason: "Targeted harassment."}},
		{"unsafe without reason", `{"safe":false}`, nil, Verdict{Reason: DefaultRejectionReason}},
		{"malformed lets through", `not json`, nil, Verdict{Safe: true}},
		{"provider error lets through", "", errors.New("timeout"), Verdict{Safe: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.Provider{}
			if tt.err != nil {
				p.Fail(tt.err)
			} else {
				p.Reply(tt.reply)
			}
			got := New(p).Moderate(context.Background(), "hello there")
			if got != tt.want {
				t.Errorf("Moderate = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestModerate_QuotesMessage(t *testing.T) {
	p := (&mock.Provider{}).Reply(`{"safe":true}`)
	New(p).Moderate(context.Background(), `she said "hi"`)

	if got := p.LastRequest().Prompt; got != `Safe? JSON. Msg: "she said \"hi\""` {
		t.Errorf("Prompt = %s", got)
	}
}

func TestSetModels_AppliesToNextCall(t *testing.T) {
	p := (&mock.Provider{}).Reply(`{"safe":true}`)
	svc := New(p, WithModels(Models{Moderation: "first"}))
	svc.Moderate(context.Background(), "a")
	if got := p.LastRequest().Model; got != "first" {
		t.Fatalf("Model = %q, want first", got)
	}

	svc.SetModels(Models{Moderation: "second"})
	svc.Moderate(context.Background(), "b")
	if got := p.LastRequest().Model; got != "second" {
		t.Errorf("Model = %q, want second", got)
	}
}

// ── Credentials ──────────────────────────────────────────────────────────────

func png(size int) generate.Attachment {
	return generate.Attachment{MIMEType: "image/png", Data: make([]byte, size)}
}

func TestVerifyCredential(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		fail    error
		wantErr error
	}{
		{"accepted", `{"accepted":true,"reason":"University seal present."}`, nil, nil},
		{"rejected", `{"accepted":false,"reason":"Looks edited."}`, nil, ErrCredentialRejected},
		{"empty answer", ``, nil, ErrCredentialRejected},
		{"malformed", `{"accepted":`, nil, ErrVerificationFailed},
		{"provider down", "", errors.New("503"), ErrVerificationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.Provider{}
			if tt.fail != nil {
				p.Fail(tt.fail)
			} else {
				p.Reply(tt.reply)
			}

			res, err := New(p).VerifyCredential(context.Background(), png(128))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("VerifyCredential: %v", err)
				}
				if !res.Accepted {
					t.Errorf("res = %+v, want accepted", res)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyCredential error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyCredential_Messages(t *testing.T) {
	if ErrCredentialRejected.Error() != "try again!" {
		t.Errorf("rejected message = %q", ErrCredentialRejected)
	}
	if ErrVerificationFailed.Error() != "Neural link error. try again!" {
		t.Errorf("failure message = %q", ErrVerificationFailed)
	}
}

func TestVerifyCredential_SendsImageWithPrompt(t *testing.T) {
	p := (&mock.Provider{}).Reply(`{"accepted":true,"reason":"ok"}`)
	if _, err := New(p).VerifyCredential(context.Background(), png(16)); err != nil {
		t.Fatalf("VerifyCredential: %v", err)
	}
	req := p.LastRequest()
	if len(req.Attachments) != 1 || req.Attachments[0].MIMEType != "image/png" {
		t.Errorf("Attachments = %+v", req.Attachments)
	}
	if !strings.Contains(req.Prompt, "credential verification agent") {
		t.Errorf("Prompt = %q", req.Prompt)
	}
}

func TestVerifyCredential_RejectsBadUploads(t *testing.T) {
	p := &mock.Provider{}
	svc := New(p)
	ctx := context.Background()

	if _, err := svc.VerifyCredential(ctx, generate.Attachment{MIMEType: "application/pdf", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("pdf error = %v, want ErrUnsupportedImage", err)
	}
	if _, err := svc.VerifyCredential(ctx, png(0)); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("empty error = %v, want ErrUnsupportedImage", err)
	}
	if _, err := svc.VerifyCredential(ctx, png(MaxCredentialSize+1)); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("large error = %v, want ErrImageTooLarge", err)
	}
	if n := len(p.Requests()); n != 0 {
		t.Errorf("provider called %d times for invalid uploads", n)
	}
}

// ── Counselor search ─────────────────────────────────────────────────────────

func TestSearchCounselors_Nearby(t *testing.T) {
	src := generate.Source{Title: "Calm Clinic", URI: "https://maps.example/calm"}
	p := (&mock.Provider{}).Reply("Calm Clinic is 1 km away.", src)

	loc := &generate.LatLng{Latitude: 19.07, Longitude: 72.87}
	res, err := New(p).SearchCounselors(context.Background(), loc)
	if err != nil {
		t.Fatalf("SearchCounselors: %v", err)
	}
	if res.Degraded || res.Notice != "" {
		t.Errorf("res = %+v, want not degraded", res)
	}
	if len(res.Sources) != 1 || res.Sources[0] != src {
		t.Errorf("Sources = %+v", res.Sources)
	}

	req := p.LastRequest()
	if req.Grounding != generate.GroundingMaps || req.Location != loc {
		t.Errorf("request grounding = %v location = %v", req.Grounding, req.Location)
	}
	if req.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", req.Model)
	}
}

func TestSearchCounselors_LocationDenied(t *testing.T) {
	p := (&mock.Provider{}).Reply("Several online services are available.")

	res, err := New(p).SearchCounselors(context.Background(), nil)
	if err != nil {
		t.Fatalf("SearchCounselors: %v", err)
	}
	if !res.Degraded || res.Notice != LocationDeniedNotice {
		t.Errorf("res = %+v, want degraded with notice", res)
	}
	if res.Sources == nil {
		t.Error("Sources must be empty, not nil")
	}
	req := p.LastRequest()
	if req.Location != nil || req.Grounding != generate.GroundingSearch {
		t.Errorf("request = %+v, want search grounding without location", req)
	}
}

func TestSearchCounselors_ProviderError(t *testing.T) {
	p := (&mock.Provider{}).Fail(errors.New("maps quota"))
	if _, err := New(p).SearchCounselors(context.Background(), nil); err == nil {
		t.Fatal("SearchCounselors: expected error")
	}
}

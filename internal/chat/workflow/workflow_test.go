package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    string
		wantErr bool
	}{
		{"nested output variables", `{"data":{"outputVariables":{"final_response":"Breathe slowly."}}}`, "Breathe slowly.", false},
		{"top-level output variables", `{"outputVariables":{"final_response":"I'm here."}}`, "I'm here.", false},
		{"snake case", `{"output_variables":{"final_response":"Take a walk."}}`, "Take a walk.", false},
		{"data message", `{"data":{"message":"Hello."}}`, "Hello.", false},
		{"message", `{"message":"Fallback text."}`, "Fallback text.", false},
		{"earlier path wins", `{"message":"late","data":{"outputVariables":{"final_response":"early"}}}`, "early", false},
		{"empty string skipped", `{"data":{"outputVariables":{"final_response":""}},"message":"second"}`, "second", false},
		{"non-string skipped", `{"outputVariables":{"final_response":42},"message":"text"}`, "text", false},
		{"nothing usable", `{"status":"ok"}`, "", true},
		{"invalid json", `{"message":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractReply([]byte(tt.doc))
			if tt.wantErr {
				if !errors.Is(err, ErrNoReply) {
					t.Fatalf("ExtractReply error = %v, want ErrNoReply", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractReply: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractReply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRespond_SendsMessageAndKey(t *testing.T) {
	var gotKey, gotCT string
	var gotBody map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotKey = r.Header.Get("apikey")
		gotCT = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"data":{"outputVariables":{"final_response":"You did well today."}}}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := c.Respond(context.Background(), "I finished my tasks")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "You did well today." {
		t.Errorf("reply = %q", reply)
	}
	if gotKey != "secret" {
		t.Errorf("apikey header = %q, want secret", gotKey)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody["inputVariables"]["user_message"] != "I finished my tasks" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestRespond_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, `{"message":"upstream"}`, ErrStatus},
		{"unauthorised", http.StatusUnauthorized, `{}`, ErrStatus},
		{"no reply", http.StatusOK, `{"data":{}}`, ErrNoReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, _ := New(srv.URL, "")
			if _, err := c.Respond(context.Background(), "hi"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Respond error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRespond_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(srv.URL, "", WithTimeout(20*time.Millisecond))
	_, err := c.Respond(context.Background(), "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Respond error = %v, want deadline exceeded", err)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Fatal("expected error for empty url")
	}
}

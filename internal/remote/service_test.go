package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prepstudio/mockview/config"
	"github.com/prepstudio/mockview/internal/interview"
)

// writeJSON mirrors the backend's responses; resty only unmarshals bodies
// declared as JSON.
func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewService(config.RemoteConfig{
		BaseURL:          srv.URL,
		Timeout:          5 * time.Second,
		ReportTimeout:    5 * time.Second,
		FetchMaxAttempts: 3,
		FetchBaseDelay:   2 * time.Second,
	}, config.SessionConfig{NumQuestions: 5, Difficulty: "hard", Type: "technical"}, nil)
	s.fetcher.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestServiceQuestionsNormalizesIDs(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/questions/s1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(t, w, map[string]interface{}{
			"questions": []map[string]string{
				{"question": "first"},
				{"id": "custom", "question": "second"},
			},
		})
	}))

	qs, err := s.Questions(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != "q1" || qs[1].ID != "custom" {
		t.Fatalf("unexpected questions: %+v", qs)
	}
}

func TestServiceQuestionsRetriesThenExhausts(t *testing.T) {
	var hits int
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "not ready", http.StatusInternalServerError)
	}))

	var attempts []int
	_, err := s.Questions(context.Background(), "s1", func(attempt, max int) {
		attempts = append(attempts, attempt)
	})
	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError, got %v", err)
	}
	if hits != 3 || len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got hits=%d attempts=%v", hits, attempts)
	}
}

func TestServiceQuestionsEmptyListIsFailure(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"questions": []interview.Question{}})
	}))

	_, err := s.Questions(context.Background(), "s1", nil)
	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError for empty list, got %v", err)
	}
}

func TestServiceGenerate(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("num_questions") != "5" || r.FormValue("difficulty") != "hard" {
			t.Errorf("session defaults not forwarded: %v", r.Form)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("resume part: %v", err)
		}
		writeJSON(t, w, map[string]interface{}{
			"session_id": "s-new",
			"questions":  []map[string]string{{"question": "generated"}},
		})
	}))

	id, qs, err := s.Generate(context.Background(), "resume text")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if id != "s-new" || len(qs) != 1 || qs[0].ID != "q1" {
		t.Fatalf("unexpected result: id=%q qs=%+v", id, qs)
	}
}

func TestServiceGenerateRejectsInvalidResponse(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"session_id": ""})
	}))
	if _, _, err := s.Generate(context.Background(), "resume"); err == nil {
		t.Fatalf("expected error for response without session id")
	}
}

func TestServiceSavePartial(t *testing.T) {
	var got map[string]interface{}
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/save-partial-session" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))

	err := s.SavePartial(context.Background(), interview.PartialSession{
		SessionID: "s1",
		Answers:   []interview.AnswerRecord{{QuestionID: "q1", Answer: "a1"}},
	})
	if err != nil {
		t.Fatalf("save partial: %v", err)
	}
	if got["session_id"] != "s1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestServiceEvaluate(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/evaluate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(t, w, map[string]string{"feedback": "well done"})
	}))

	feedback, err := s.Evaluate(context.Background(), interview.FinalSubmission{SessionID: "s1"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if feedback != "well done" {
		t.Fatalf("unexpected feedback %q", feedback)
	}
}

func TestServiceGenerateReport(t *testing.T) {
	s := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interview/generate-report" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["session_data"]; !ok {
			t.Errorf("missing session_data wrapper: %+v", body)
		}
		writeJSON(t, w, map[string]string{"report": "full report"})
	}))

	report, err := s.GenerateReport(context.Background(), interview.ReportRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("generate report: %v", err)
	}
	if report != "full report" {
		t.Fatalf("unexpected report %q", report)
	}

	empty := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"report": ""})
	}))
	if _, err := empty.GenerateReport(context.Background(), interview.ReportRequest{SessionID: "s1"}); err == nil {
		t.Fatalf("expected error for empty report")
	}
}

package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prepstudio/mockview/internal/interview"
	"github.com/prepstudio/mockview/internal/media"
)

func testClip() media.Clip {
	return media.Clip{Data: []byte("RIFFfakewav"), MimeType: "audio/wav"}
}

func TestTranscribeSubmitDraft(t *testing.T) {
	var gotQuestion, gotSession, gotFinal string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotQuestion = r.FormValue("question")
		gotSession = r.FormValue("session_id")
		gotFinal = r.FormValue("is_final")
		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("audio part: %v", err)
		} else {
			gotAudio, _ = io.ReadAll(file)
			file.Close()
		}
		writeJSON(t, w, map[string]string{
			"transcription": "I would use a worker pool",
			"timestamp":     "2026-01-02T15:04:05Z",
		})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, 5*time.Second, nil)
	res, err := c.Submit(context.Background(), testClip(),
		interview.Question{ID: "q1", Text: "How would you parallelize this?"}, "s1", false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Transcription != "I would use a worker pool" {
		t.Fatalf("unexpected transcription %q", res.Transcription)
	}
	if res.Evaluation != "" {
		t.Fatalf("draft must not carry an evaluation")
	}
	want, _ := time.Parse(time.RFC3339, "2026-01-02T15:04:05Z")
	if !res.Timestamp.Equal(want) {
		t.Fatalf("timestamp not parsed: %v", res.Timestamp)
	}
	if gotQuestion != "How would you parallelize this?" || gotSession != "s1" || gotFinal != "false" {
		t.Fatalf("unexpected form fields: %q %q %q", gotQuestion, gotSession, gotFinal)
	}
	if string(gotAudio) != "RIFFfakewav" {
		t.Fatalf("audio payload not forwarded: %q", gotAudio)
	}
}

func TestTranscribeSubmitLabelsClipByType(t *testing.T) {
	var gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, hdr, err := r.FormFile("audio"); err != nil {
			t.Errorf("audio part: %v", err)
		} else {
			gotName = hdr.Filename
			gotType = hdr.Header.Get("Content-Type")
		}
		writeJSON(t, w, map[string]string{"transcription": "ok"})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, 5*time.Second, nil)
	clip := media.Clip{Data: []byte("webm-bytes"), MimeType: "audio/webm"}
	if _, err := c.Submit(context.Background(), clip, interview.Question{ID: "q1"}, "s1", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotName != "recording.webm" || gotType != "audio/webm" {
		t.Fatalf("clip mislabeled: name=%q type=%q", gotName, gotType)
	}
}

func TestTranscribeSubmitFinalRequiresEvaluation(t *testing.T) {
	body := map[string]string{"transcription": "an answer"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, body)
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, 5*time.Second, nil)

	_, err := c.Submit(context.Background(), testClip(), interview.Question{ID: "q1"}, "s1", true)
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranscriptionError for final without evaluation, got %v", err)
	}

	body["evaluation"] = "solid answer"
	res, err := c.Submit(context.Background(), testClip(), interview.Question{ID: "q1"}, "s1", true)
	if err != nil {
		t.Fatalf("submit final: %v", err)
	}
	if res.Evaluation != "solid answer" {
		t.Fatalf("unexpected evaluation %q", res.Evaluation)
	}
}

func TestTranscribeSubmitRejectsMissingTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"evaluation": "??"})
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, 5*time.Second, nil)
	_, err := c.Submit(context.Background(), testClip(), interview.Question{ID: "q1"}, "s1", false)
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
}

func TestTranscribeSubmitSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewTranscriptionClient(srv.URL, 5*time.Second, nil)
	_, err := c.Submit(context.Background(), testClip(), interview.Question{ID: "q1"}, "s1", false)
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
}

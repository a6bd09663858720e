package remote

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prepstudio/mockview/internal/interview"
	"github.com/prepstudio/mockview/internal/media"
)

// TranscriptionError wraps HTTP failures, timeouts and malformed responses
// from the transcribe endpoint. The client performs no retries of its own.
type TranscriptionError struct {
	Cause error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("remote: transcription failed: %v", e.Cause)
}

func (e *TranscriptionError) Unwrap() error { return e.Cause }

// TranscriptionClient uploads recorded clips to the remote
// transcription/evaluation service.
type TranscriptionClient struct {
	http   *resty.Client
	logger *log.Logger
}

func NewTranscriptionClient(baseURL string, timeout time.Duration, logger *log.Logger) *TranscriptionClient {
	if logger == nil {
		logger = log.New(log.Writer(), "[TRANSCRIBE] ", log.LstdFlags)
	}
	return &TranscriptionClient{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		logger: logger,
	}
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
	Evaluation    string `json:"evaluation"`
	Timestamp     string `json:"timestamp"`
}

// clipFileName derives the upload filename from the clip's declared type
// so a non-WAV capture source is not mislabeled.
func clipFileName(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return "recording.webm"
	case "audio/ogg":
		return "recording.ogg"
	default:
		return "recording.wav"
	}
}

// Submit posts the clip as multipart form data. Draft submissions may omit
// the evaluation; final submissions without one are treated as invalid so
// the caller never appends an unevaluated answer.
func (c *TranscriptionClient) Submit(ctx context.Context, clip media.Clip, question interview.Question, sessionID string, final bool) (interview.TranscriptionResult, error) {
	mimeType := clip.MimeType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	var body transcribeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("audio", clipFileName(mimeType), mimeType, bytes.NewReader(clip.Data)).
		SetFormData(map[string]string{
			"question":   question.Text,
			"session_id": sessionID,
			"is_final":   strconv.FormatBool(final),
		}).
		SetResult(&body).
		Post("/transcribe")
	if err != nil {
		return interview.TranscriptionResult{}, &TranscriptionError{Cause: err}
	}
	if resp.IsError() {
		return interview.TranscriptionResult{}, &TranscriptionError{
			Cause: fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}
	if body.Transcription == "" {
		return interview.TranscriptionResult{}, &TranscriptionError{
			Cause: fmt.Errorf("response missing transcription"),
		}
	}
	if final && body.Evaluation == "" {
		return interview.TranscriptionResult{}, &TranscriptionError{
			Cause: fmt.Errorf("final response missing evaluation"),
		}
	}

	result := interview.TranscriptionResult{
		Transcription: body.Transcription,
		Evaluation:    body.Evaluation,
		Timestamp:     time.Now(),
	}
	if body.Timestamp != "" {
		if ts, perr := time.Parse(time.RFC3339, body.Timestamp); perr == nil {
			result.Timestamp = ts
		}
	}
	return result, nil
}

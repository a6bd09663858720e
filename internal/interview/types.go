package interview

import (
	"context"
	"fmt"
	"time"

	"github.com/prepstudio/mockview/internal/media"
)

// Phase is the orchestrator's position in the session state machine.
type Phase string

const (
	PhaseLoading              Phase = "loading"
	PhaseReady                Phase = "ready"
	PhaseRecording            Phase = "recording"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseSubmitting           Phase = "submitting"
	PhaseComplete             Phase = "complete"
	PhaseTimedOut             Phase = "timed_out"
	PhaseFailed               Phase = "failed"
)

// Terminal reports whether no further user transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseTimedOut || p == PhaseFailed
}

// Question is immutable once fetched; the orchestrator owns the ordered
// list for the session's lifetime.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"question"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
}

// TranscriptionResult is the structured response of a transcription
// submission. Evaluation is present only for final submissions.
type TranscriptionResult struct {
	Transcription string    `json:"transcription"`
	Evaluation    string    `json:"evaluation,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AnswerRecord is created only on a user-confirmed final submission and
// never mutated afterwards.
type AnswerRecord struct {
	QuestionID  string    `json:"question_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Evaluation  string    `json:"evaluation"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// PartialSession is the best-effort snapshot saved when the countdown
// expires before completion. Distinct from the final report submission.
type PartialSession struct {
	SessionID string         `json:"session_id"`
	Answers   []AnswerRecord `json:"answers"`
	Timestamp time.Time      `json:"timestamp"`
}

// FinalSubmission carries the full confirmed ledger for evaluation.
type FinalSubmission struct {
	SessionID string         `json:"session_id"`
	Answers   []AnswerRecord `json:"answers"`
}

// ReportRequest carries the complete session data for report generation.
type ReportRequest struct {
	SessionID   string         `json:"session_id"`
	Questions   []Question     `json:"questions"`
	Answers     []AnswerRecord `json:"answers"`
	Feedback    string         `json:"feedback,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Snapshot is the read-only view of session state exposed to the
// presentation layer.
type Snapshot struct {
	SessionID       string    `json:"session_id"`
	Phase           Phase     `json:"phase"`
	CurrentIndex    int       `json:"current_index"`
	TotalQuestions  int       `json:"total_questions"`
	Question        *Question `json:"question,omitempty"`
	Transcription   string    `json:"transcription,omitempty"`
	Processing      bool      `json:"processing"`
	TimeRemainingMS int64     `json:"time_remaining_ms"`
	Clock           string    `json:"clock"`
	Answered        int       `json:"answered"`
	Feedback        string    `json:"feedback,omitempty"`
	Report          string    `json:"report,omitempty"`
	Error           string    `json:"error,omitempty"`
	RetryAttempt    int       `json:"retry_attempt,omitempty"`
	RetryMax        int       `json:"retry_max,omitempty"`
}

// FormatClock renders remaining milliseconds as m:ss for display.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Transcriber uploads a recorded clip plus context to the remote
// transcription/evaluation service. No built-in retry; the orchestrator
// decides.
type Transcriber interface {
	Submit(ctx context.Context, clip media.Clip, question Question, sessionID string, final bool) (TranscriptionResult, error)
}

// QuestionSource obtains the ordered question list for a session, either
// by id or by generating from resume text. onAttempt is invoked before
// every fetch attempt so the UI can show "Retrying… (n/max)".
type QuestionSource interface {
	Questions(ctx context.Context, sessionID string, onAttempt func(attempt, max int)) ([]Question, error)
	Generate(ctx context.Context, resume string) (string, []Question, error)
}

// SessionStore is the remote session store consumed at the terminal
// transitions.
type SessionStore interface {
	SavePartial(ctx context.Context, snap PartialSession) error
	Evaluate(ctx context.Context, sub FinalSubmission) (string, error)
	GenerateReport(ctx context.Context, req ReportRequest) (string, error)
}

// Recorder is the capture surface the orchestrator drives per question.
// *media.Capture satisfies it.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (media.Clip, error)
	Release()
}

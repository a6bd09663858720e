package interview

import (
	"fmt"
	"time"
)

// OutOfOrderError indicates an append that does not correspond to the next
// expected question. It is an invariant violation, not a user error.
type OutOfOrderError struct {
	Expected string
	Got      string
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("ledger: out-of-order append: expected question %q, got %q", e.Expected, e.Got)
}

// Ledger is the ordered, append-only record of confirmed answers for one
// session. Pure in-memory accumulator; the orchestrator is its only writer.
type Ledger struct {
	sessionID string
	questions []Question
	records   []AnswerRecord
}

func NewLedger(sessionID string, questions []Question) *Ledger {
	return &Ledger{sessionID: sessionID, questions: questions}
}

// Append adds a confirmed answer. The record must belong to the question at
// the current ledger length; anything else fails with *OutOfOrderError.
func (l *Ledger) Append(rec AnswerRecord) error {
	if len(l.records) >= len(l.questions) {
		return &OutOfOrderError{Expected: "", Got: rec.QuestionID}
	}
	expected := l.questions[len(l.records)].ID
	if rec.QuestionID != expected {
		return &OutOfOrderError{Expected: expected, Got: rec.QuestionID}
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *Ledger) Len() int { return len(l.records) }

// Records returns a copy; the ledger itself is never handed out.
func (l *Ledger) Records() []AnswerRecord {
	out := make([]AnswerRecord, len(l.records))
	copy(out, l.records)
	return out
}

// PartialSnapshot captures whatever has been confirmed so far, for the
// best-effort save on timeout.
func (l *Ledger) PartialSnapshot(now time.Time) PartialSession {
	return PartialSession{
		SessionID: l.sessionID,
		Answers:   l.Records(),
		Timestamp: now,
	}
}

// FinalSubmission is the full confirmed ledger, valid once every question
// has been answered.
func (l *Ledger) FinalSubmission() FinalSubmission {
	return FinalSubmission{
		SessionID: l.sessionID,
		Answers:   l.Records(),
	}
}

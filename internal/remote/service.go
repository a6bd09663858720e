package remote

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/prepstudio/mockview/config"
	"github.com/prepstudio/mockview/internal/interview"
)

// Service is the client side of the interview backend: question
// acquisition and the session store contracts. It implements
// interview.QuestionSource and interview.SessionStore.
type Service struct {
	http    *resty.Client
	report  *resty.Client
	fetcher *Fetcher
	session config.SessionConfig
	logger  *log.Logger
}

func NewService(remote config.RemoteConfig, session config.SessionConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[REMOTE] ", log.LstdFlags)
	}
	return &Service{
		http:    resty.New().SetBaseURL(remote.BaseURL).SetTimeout(remote.Timeout),
		report:  resty.New().SetBaseURL(remote.BaseURL).SetTimeout(remote.ReportTimeout),
		fetcher: NewFetcher(remote.FetchMaxAttempts, remote.FetchBaseDelay),
		session: session,
		logger:  logger,
	}
}

type questionsResponse struct {
	Questions []interview.Question `json:"questions"`
}

// Questions fetches the ordered question list with bounded retries. An
// empty or missing list counts as a fetch failure.
func (s *Service) Questions(ctx context.Context, sessionID string, onAttempt func(attempt, max int)) ([]interview.Question, error) {
	var out []interview.Question
	err := s.fetcher.Do(ctx, onAttempt, func(ctx context.Context) error {
		var body questionsResponse
		resp, err := s.http.R().
			SetContext(ctx).
			SetResult(&body).
			Get("/questions/" + sessionID)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("unexpected status %s", resp.Status())
		}
		if len(body.Questions) == 0 {
			return fmt.Errorf("invalid questions data received")
		}
		out = normalizeQuestions(body.Questions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type uploadResponse struct {
	SessionID string               `json:"session_id"`
	Questions []interview.Question `json:"questions"`
}

// Generate produces a fresh session from resume text, mirroring the
// resume-upload entry into an interview.
func (s *Service) Generate(ctx context.Context, resume string) (string, []interview.Question, error) {
	var body uploadResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetFileReader("file", "resume.txt", strings.NewReader(resume)).
		SetFormData(map[string]string{
			"num_questions":  strconv.Itoa(s.session.NumQuestions),
			"difficulty":     s.session.Difficulty,
			"interview_type": s.session.Type,
		}).
		SetResult(&body).
		Post("/upload")
	if err != nil {
		return "", nil, fmt.Errorf("generating questions: %w", err)
	}
	if resp.IsError() {
		return "", nil, fmt.Errorf("generating questions: unexpected status %s", resp.Status())
	}
	if body.SessionID == "" || len(body.Questions) == 0 {
		return "", nil, fmt.Errorf("generating questions: invalid response from server")
	}
	return body.SessionID, normalizeQuestions(body.Questions), nil
}

// SavePartial ships the confirmed ledger on timeout. Acknowledgement only.
func (s *Service) SavePartial(ctx context.Context, snap interview.PartialSession) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"session_id": snap.SessionID,
			"data":       snap,
		}).
		Post("/save-partial-session")
	if err != nil {
		return fmt.Errorf("saving partial session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("saving partial session: unexpected status %s", resp.Status())
	}
	return nil
}

type evaluateResponse struct {
	Feedback string `json:"feedback"`
}

// Evaluate submits the full answer list once the session completes.
func (s *Service) Evaluate(ctx context.Context, sub interview.FinalSubmission) (string, error) {
	var body evaluateResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sub).
		SetResult(&body).
		Post("/evaluate")
	if err != nil {
		return "", fmt.Errorf("evaluating session: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("evaluating session: unexpected status %s", resp.Status())
	}
	return body.Feedback, nil
}

type reportResponse struct {
	Report string `json:"report"`
}

// GenerateReport requests the final interview report. Uses the longer
// report timeout.
func (s *Service) GenerateReport(ctx context.Context, req interview.ReportRequest) (string, error) {
	var body reportResponse
	resp, err := s.report.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"session_data": req}).
		SetResult(&body).
		Post("/interview/generate-report")
	if err != nil {
		return "", fmt.Errorf("generating report: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("generating report: unexpected status %s", resp.Status())
	}
	if body.Report == "" {
		return "", fmt.Errorf("generating report: invalid report data received")
	}
	return body.Report, nil
}

// normalizeQuestions assigns stable ids to questions the backend returns
// without one; the ledger keys ordering off these ids.
func normalizeQuestions(qs []interview.Question) []interview.Question {
	out := make([]interview.Question, len(qs))
	copy(out, qs)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	return out
}

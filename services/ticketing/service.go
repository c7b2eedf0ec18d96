package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/interfaces"
	er "github.com/zetadesk/mailgate/internal/errors"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

const defaultTimeout = 30 * time.Second

type ticketingService struct {
	cfg        *models.RestConfig
	log        logger.Logger
	httpClient *http.Client
}

func NewTicketingService(cfg *models.RestConfig, log logger.Logger) interfaces.TicketingService {
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return &ticketingService{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope is the response wrapper of every ticketing endpoint. The
// resource payload sits at content[0][ResourceName].
type envelope struct {
	ReturnCode   int                          `json:"ReturnCode"`
	ResourceName string                       `json:"ResourceName"`
	Content      []map[string]json.RawMessage `json:"content"`
	Messages     []string                     `json:"Messages"`
}

func (e *envelope) resource() (json.RawMessage, error) {
	if len(e.Content) == 0 {
		return nil, errors.New("empty content in ticketing response")
	}
	raw, ok := e.Content[0][e.ResourceName]
	if !ok {
		return nil, errors.Errorf("resource %s missing in ticketing response", e.ResourceName)
	}
	return raw, nil
}

func (s *ticketingService) baseURL() string {
	base := fmt.Sprintf("%s://%s:%d", s.cfg.Protocol, s.cfg.Host, s.cfg.Port)
	if s.cfg.URL != "" {
		base += "/" + strings.Trim(s.cfg.URL, "/")
	}
	return base
}

func (s *ticketingService) endpoint(path string) string {
	return s.baseURL() + "/" + strings.TrimPrefix(path, "/")
}

// doJSON performs one request and decodes the envelope. A non-2xx status
// or a non-zero ReturnCode is an error carrying the server Messages.
func (s *ticketingService) doJSON(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.doJSON")
	defer span.Finish()
	tracing.TagComponentRest(span)
	span.LogFields(tracingLog.String("method", method), tracingLog.String("path", path))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), reader)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "ticketing request failed")
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to read ticketing response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Errorf("ticketing API returned status %d: %s", resp.StatusCode, string(responseBody))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(responseBody, &env); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to parse ticketing response")
	}

	if env.ReturnCode != 0 {
		err := errors.Errorf("ticketing API returned code %d: %s", env.ReturnCode, strings.Join(env.Messages, "; "))
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &env, nil
}

func (s *ticketingService) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.GetPersonByEmail")
	defer span.Finish()
	span.LogFields(tracingLog.String("email", email))

	env, err := s.doJSON(ctx, http.MethodGet, "Persons?email="+url.QueryEscape(email), nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	raw, err := env.resource()
	if err != nil {
		// Lookup succeeded but matched nobody
		return nil, er.ErrPersonNotFound
	}

	var person models.Person
	if err := json.Unmarshal(raw, &person); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to parse person")
	}
	if person.ID == "" {
		return nil, er.ErrPersonNotFound
	}

	return &person, nil
}

func (s *ticketingService) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.GetIssue")
	defer span.Finish()
	span.LogFields(tracingLog.String("issueId", issueID))

	env, err := s.doJSON(ctx, http.MethodGet, "Issues/"+url.PathEscape(issueID), nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	raw, err := env.resource()
	if err != nil {
		return nil, er.ErrIssueNotFound
	}

	var issue models.Issue
	if err := json.Unmarshal(raw, &issue); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to parse issue")
	}

	return &issue, nil
}

func (s *ticketingService) CreateIssue(ctx context.Context, issue *models.Issue) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.CreateIssue")
	defer span.Finish()
	tracing.LogObjectAsJson(span, "issue", issue)

	env, err := s.doJSON(ctx, http.MethodPost, "Issues", map[string]*models.Issue{"ZIssue": issue})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	raw, err := env.resource()
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var created models.Issue
	if err := json.Unmarshal(raw, &created); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to parse created issue")
	}
	if created.ID == "" {
		return "", errors.New("ticketing API returned issue without id")
	}

	span.LogFields(tracingLog.String("result.issueId", created.ID))
	return created.ID, nil
}

func (s *ticketingService) CreateComment(ctx context.Context, comment *models.Comment) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.CreateComment")
	defer span.Finish()
	span.LogFields(tracingLog.String("foreignKey", comment.ForeignKey))

	env, err := s.doJSON(ctx, http.MethodPost, "Comments", map[string]*models.Comment{"ZComment": comment})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	raw, err := env.resource()
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var created models.Comment
	if err := json.Unmarshal(raw, &created); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to parse created comment")
	}
	if created.ID == "" {
		return "", errors.New("ticketing API returned comment without id")
	}

	span.LogFields(tracingLog.String("result.commentId", created.ID))
	return created.ID, nil
}

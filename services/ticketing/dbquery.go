package ticketing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/internal/tracing"
)

// dbQueryResponse wraps the raw-SQL endpoint result: rows of column
// name → value.
type dbQueryResponse struct {
	ReturnCode int                      `json:"ReturnCode"`
	Content    []map[string]interface{} `json:"content"`
	Messages   []string                 `json:"Messages"`
}

// runQuery posts raw SQL text to the database query endpoint and returns
// the first column of the first row.
func (s *ticketingService) runQuery(ctx context.Context, query string) (interface{}, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.runQuery")
	defer span.Finish()
	tracing.TagComponentRest(span)
	span.LogFields(tracingLog.String("query", query))

	uri := s.cfg.DBQueryURI
	if uri == "" {
		return nil, errors.New("dbQueryUri is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(uri), strings.NewReader(query))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create db query request")
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	req.Header.Set("Content-Type", "text/plain")
	tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "db query request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to read db query response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Errorf("db query returned status %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var result dbQueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to parse db query response")
	}
	if result.ReturnCode != 0 {
		err := errors.Errorf("db query returned code %d: %s", result.ReturnCode, strings.Join(result.Messages, "; "))
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(result.Content) == 0 {
		return nil, errors.New("db query returned no rows")
	}

	for _, v := range result.Content[0] {
		return v, nil
	}
	return nil, errors.New("db query returned an empty row")
}

func (s *ticketingService) CountRecentIssuesByAuthor(ctx context.Context, personID string, span time.Duration) (int, error) {
	traceSpan, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.CountRecentIssuesByAuthor")
	defer traceSpan.Finish()
	traceSpan.LogFields(tracingLog.String("personId", personID))

	since := time.Now().Add(-span).UTC().Format("2006-01-02 15:04:05")
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM ZIssue WHERE authorId = '%s' AND createdAt >= '%s'",
		escapeSQL(personID), since,
	)

	value, err := s.runQuery(ctx, query)
	if err != nil {
		tracing.TraceErr(traceSpan, err)
		return 0, err
	}

	count, err := toInt(value)
	if err != nil {
		tracing.TraceErr(traceSpan, err)
		return 0, err
	}

	traceSpan.LogFields(tracingLog.Int("result.count", count))
	return count, nil
}

func (s *ticketingService) GetPersonUTCOffset(ctx context.Context, personID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.GetPersonUTCOffset")
	defer span.Finish()
	span.LogFields(tracingLog.String("personId", personID))

	query := fmt.Sprintf("SELECT utcOffset FROM ZPerson WHERE id = '%s'", escapeSQL(personID))

	value, err := s.runQuery(ctx, query)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	offset, ok := value.(string)
	if !ok || offset == "" {
		err := errors.New("db query returned an invalid utc offset")
		tracing.TraceErr(span, err)
		return "", err
	}

	span.LogFields(tracingLog.String("result.offset", offset))
	return offset, nil
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, errors.Errorf("unexpected count value %T", value)
	}
}

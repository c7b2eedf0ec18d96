package ticketing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/internal/enum"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// UploadAttachment streams the attachment bytes to the attachment
// collection of the parent entity. The filename travels RFC 5987 encoded
// so UTF-8 names survive.
func (s *ticketingService) UploadAttachment(ctx context.Context, entity enum.EntityType, entityID string, attachment models.Attachment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TicketingService.UploadAttachment")
	defer span.Finish()
	tracing.TagComponentRest(span)
	span.LogFields(
		tracingLog.String("entity", entity.String()),
		tracingLog.String("entityId", entityID),
		tracingLog.String("fileName", attachment.FileName),
		tracingLog.Int("size", len(attachment.Content)),
	)

	var path string
	switch entity {
	case enum.EntityIssue:
		path = "Issues/" + url.PathEscape(entityID) + "/attachments"
	case enum.EntityComment:
		path = "Comments/" + url.PathEscape(entityID) + "/attachments"
	default:
		err := errors.Errorf("unknown attachment entity type %q", entity)
		tracing.TraceErr(span, err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(path), bytes.NewReader(attachment.Content))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create attachment request")
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", encodeRFC5987(attachment.FileName)))
	req.ContentLength = int64(len(attachment.Content))
	tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "attachment upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		err := errors.Errorf("attachment upload returned status %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// encodeRFC5987 percent-encodes everything outside the attr-char set of
// RFC 5987 so the value is safe inside filename*=UTF-8''.
func encodeRFC5987(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("!#$&+-.^_`|~", c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

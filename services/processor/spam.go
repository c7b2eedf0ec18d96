package processor

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
	"github.com/zetadesk/mailgate/internal/utils"
)

// checkSpam gates a message by author. Decision order: whitelisted
// authors pass, a configured auto-reply header rejects, then the issue
// count of the recent time span decides. A failing count query passes —
// fail-open is deliberate so ticketing outages never block intake.
func (p *Processor) checkSpam(ctx context.Context, personID string, msg *models.InboundMessage) bool {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.checkSpam")
	defer span.Finish()
	tracing.TagUid(span, msg.UID)
	span.LogFields(tracingLog.String("personId", personID))

	if utils.IsStringInSlice(personID, p.cfg.Spam.DontCheckAuthors) {
		span.LogFields(tracingLog.String("result", "pass.whitelisted"))
		return true
	}

	if header, ok := p.findSpamHeader(msg); ok {
		span.LogFields(tracingLog.String("result", "reject.header"), tracingLog.String("header", header))
		p.log.Errorf("uid %d: spam header %q present", msg.UID, header)
		return false
	}

	count, err := p.ticketing.CountRecentIssuesByAuthor(ctx, personID, p.cfg.SpamTimeSpanDuration())
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Warnf("uid %d: spam count query failed, passing: %v", msg.UID, err)
		span.LogFields(tracingLog.String("result", "pass.query-failed"))
		return true
	}

	if count > p.cfg.Spam.MaxNumOfIssues {
		span.LogFields(tracingLog.String("result", "reject.count"), tracingLog.Int("count", count))
		p.log.Errorf("uid %d: spam alert, %d issues by %s within %d minutes (max %d)",
			msg.UID, count, personID, p.cfg.Spam.TimeSpan, p.cfg.Spam.MaxNumOfIssues)
		return false
	}

	span.LogFields(tracingLog.String("result", "pass"), tracingLog.Int("count", count))
	return true
}

func (p *Processor) findSpamHeader(msg *models.InboundMessage) (string, bool) {
	for _, header := range p.cfg.Spam.Headers {
		if msg.HasHeader(header) {
			return header, true
		}
	}
	return "", false
}

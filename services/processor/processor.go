package processor

import (
	"context"
	"regexp"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/interfaces"
	"github.com/zetadesk/mailgate/internal/enum"
	er "github.com/zetadesk/mailgate/internal/errors"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// srqPattern identifies an existing issue referenced in the subject.
var srqPattern = regexp.MustCompile(`SRQ\d{12}`)

// Processor turns fetched messages into ticketing calls. One instance is
// shared by all connections; it holds no per-message state.
type Processor struct {
	cfg       *models.RuntimeConfig
	ticketing interfaces.TicketingService
	log       logger.Logger
}

func NewProcessor(cfg *models.RuntimeConfig, ticketing interfaces.TicketingService, log logger.Logger) *Processor {
	return &Processor{
		cfg:       cfg,
		ticketing: ticketing,
		log:       log,
	}
}

// Dispatch parses the raw message and runs the full per-message
// pipeline to a settled outcome. It never returns an error: every
// failure path maps to DispatchRejected.
func (p *Processor) Dispatch(ctx context.Context, uid uint32, raw []byte) enum.DispatchOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Dispatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUid(span, uid)

	msg, err := ParseMessage(uid, raw)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("uid %d: message parse failed: %v", uid, err)
		return enum.DispatchRejected
	}
	span.LogFields(tracingLog.String("subject", msg.Subject))

	p.ProcessBody(msg)

	issueID := srqPattern.FindString(msg.Subject)
	if issueID != "" {
		_, err := p.ticketing.GetIssue(ctx, issueID)
		if err == nil {
			span.LogFields(tracingLog.String("flow", "comment"), tracingLog.String("issueId", issueID))
			return p.commentFlow(ctx, msg, issueID)
		}
		p.log.Infof("uid %d: issue %s from subject not found, creating new issue: %v", msg.UID, issueID, err)
	}

	span.LogFields(tracingLog.String("flow", "issue"))
	return p.issueFlow(ctx, msg)
}

// lookupSender resolves the From address to a person. The bool reports
// whether the person exists; a hard lookup failure is returned as error.
func (p *Processor) lookupSender(ctx context.Context, msg *models.InboundMessage) (*models.Person, bool, error) {
	sender := msg.SenderAddress()
	if sender == "" {
		return nil, false, nil
	}

	person, err := p.ticketing.GetPersonByEmail(ctx, sender)
	if err != nil {
		if errors.Is(err, er.ErrPersonNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return person, true, nil
}

package processor

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/zetadesk/mailgate/internal/tracing"
)

// adjustDateFields appends the person's UTC offset to every parsed field
// whose value is a naive ISO date. A failing offset lookup falls back to
// +00:00; issue creation proceeds either way.
func (p *Processor) adjustDateFields(ctx context.Context, personID string, fields map[string]string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.adjustDateFields")
	defer span.Finish()
	span.LogFields(tracingLog.String("personId", personID))

	hasDate := false
	for _, value := range fields {
		if IsISODateTime(value) {
			hasDate = true
			break
		}
	}
	if !hasDate {
		return
	}

	offset, err := p.ticketing.GetPersonUTCOffset(ctx, personID)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Warnf("utc offset lookup for %s failed, using +00:00: %v", personID, err)
		offset = "+00:00"
	}

	for key, value := range fields {
		if IsISODateTime(value) {
			fields[key] = value + offset
		}
	}

	span.LogFields(tracingLog.String("offset", offset))
}

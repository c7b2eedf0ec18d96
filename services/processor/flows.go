package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/zetadesk/mailgate/internal/enum"
	er "github.com/zetadesk/mailgate/internal/errors"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// commentFlow attaches the message as a comment to an existing issue.
func (p *Processor) commentFlow(ctx context.Context, msg *models.InboundMessage, issueID string) enum.DispatchOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.commentFlow")
	defer span.Finish()
	tracing.TagUid(span, msg.UID)
	span.LogFields(tracingLog.String("issueId", issueID))

	person, found, err := p.lookupSender(ctx, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("uid %d: sender lookup failed: %v", msg.UID, err)
		return enum.DispatchRejected
	}

	comment := &models.Comment{
		Comment:    msg.Body,
		ForeignKey: issueID,
	}

	if found {
		if !p.checkSpam(ctx, person.ID, msg) {
			tracing.TraceErr(span, er.ErrSpamRejected)
			p.log.Errorf("uid %d: spam alert, comment by %s on %s rejected", msg.UID, person.ID, issueID)
			return enum.DispatchRejected
		}
		comment.AuthorID = person.ID
	}

	commentID, err := p.ticketing.CreateComment(ctx, comment)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("uid %d: failed to create comment on %s: %v", msg.UID, issueID, err)
		return enum.DispatchRejected
	}

	p.log.Infof("uid %d: created comment %s on issue %s", msg.UID, commentID, issueID)
	p.uploadAttachments(ctx, msg, enum.EntityComment, commentID, false)

	return enum.DispatchProcessed
}

// issueFlow creates a new issue from the message.
func (p *Processor) issueFlow(ctx context.Context, msg *models.InboundMessage) enum.DispatchOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.issueFlow")
	defer span.Finish()
	tracing.TagUid(span, msg.UID)

	person, found, err := p.lookupSender(ctx, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("uid %d: sender lookup failed: %v", msg.UID, err)
		return enum.DispatchRejected
	}

	if !found {
		if p.cfg.OnPersonNotFound.MoveMsgToFailureFolder {
			p.log.Infof("uid %d: sender %s unknown, moving to failure folder", msg.UID, msg.SenderAddress())
			return enum.DispatchRejected
		}
		// createSystemIssue: authored by the configured default author
		return p.createIssue(ctx, msg, p.cfg.DefaultIssueAttrs.AuthorID)
	}

	if !p.checkSpam(ctx, person.ID, msg) {
		tracing.TraceErr(span, er.ErrSpamRejected)
		p.log.Errorf("uid %d: spam alert, issue by %s rejected", msg.UID, person.ID)
		return enum.DispatchRejected
	}

	p.adjustDateFields(ctx, person.ID, msg.ParsedFields)

	return p.createIssue(ctx, msg, person.ID)
}

func (p *Processor) createIssue(ctx context.Context, msg *models.InboundMessage, authorID string) enum.DispatchOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.createIssue")
	defer span.Finish()
	tracing.TagUid(span, msg.UID)
	span.LogFields(tracingLog.String("authorId", authorID))

	defaults := p.cfg.DefaultIssueAttrs
	issue := &models.Issue{
		Subject:     msg.Subject,
		Description: msg.Body,
		AuthorID:    authorID,
		StatusID:    defaults.StatusID,
		CategoryID:  defaults.CategoryID,
		PriorityID:  defaults.PriorityID,
		SourceID:    defaults.SourceID,
		Fields:      msg.ParsedFields,
	}

	issueID, err := p.ticketing.CreateIssue(ctx, issue)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("uid %d: failed to create issue: %v", msg.UID, err)
		return enum.DispatchRejected
	}

	p.log.Infof("uid %d: created issue %s", msg.UID, issueID)
	p.uploadAttachments(ctx, msg, enum.EntityIssue, issueID, true)

	return enum.DispatchProcessed
}

// uploadAttachments pushes the decoded attachments of one message to the
// parent entity, concurrently. Failures are logged and never affect the
// parent outcome; the caller's move happens only after all uploads
// settle. New issues additionally receive the raw EML when configured.
func (p *Processor) uploadAttachments(ctx context.Context, msg *models.InboundMessage, entity enum.EntityType, entityID string, isNewIssue bool) {
	if !p.cfg.JoinAttachments {
		return
	}

	attachments := msg.Attachments
	if isNewIssue && p.cfg.JoinOriginalAsEml && len(msg.Raw) > 0 {
		attachments = append(attachments, models.Attachment{
			FileName:    fmt.Sprintf("%d-message.eml", msg.UID),
			ContentType: "message/rfc822",
			Length:      len(msg.Raw),
			Content:     msg.Raw,
		})
	}
	if len(attachments) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, attachment := range attachments {
		wg.Add(1)
		go func(att models.Attachment) {
			defer wg.Done()
			if err := p.ticketing.UploadAttachment(ctx, entity, entityID, att); err != nil {
				p.log.Errorf("uid %d: failed to upload attachment %s to %s %s: %v",
					msg.UID, att.FileName, entity, entityID, err)
			}
		}(attachment)
	}
	wg.Wait()
}

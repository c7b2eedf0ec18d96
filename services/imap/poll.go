package imap

import (
	"context"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/zetadesk/mailgate/interfaces"
	"github.com/zetadesk/mailgate/internal/enum"
	er "github.com/zetadesk/mailgate/internal/errors"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// poll runs one full cycle: verify the mailbox tree, then scan every
// passed mailbox in configuration order. Mailboxes are strictly serial
// on the connection.
func (s *Supervisor) poll(ctx context.Context, c *client.Client) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.poll")
	defer span.Finish()
	tracing.TagComponentImap(span)
	tracing.TagServerHost(span, s.cfg.Host)

	delimiter, names, err := s.listMailboxes(c)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	passed, failed := CheckMailboxTree(s.cfg.Mailboxes, names, delimiter)
	for _, route := range failed {
		s.log.Errorf("[%s] mailbox %q or its %q/%q children are missing, skipping",
			s.cfg.Host, route.Name, route.Success, route.Failure)
	}
	if len(passed) == 0 {
		tracing.TraceErr(span, er.ErrNoMailboxPassed)
		return er.ErrNoMailboxPassed
	}

	for _, route := range passed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processMailbox(ctx, c, route, delimiter); err != nil {
			if isConnectionError(err) {
				return err
			}
			// Configuration or per-mailbox errors fail this box only
			s.log.Errorf("[%s][%s] error processing mailbox: %v", s.cfg.Host, route.Name, err)
		}
	}

	return nil
}

// processMailbox scans one mailbox: search UNSEEN, cap the batch, fetch
// headers (marking seen), then dispatch every message in server order.
// A later message proceeds regardless of the previous outcome.
func (s *Supervisor) processMailbox(ctx context.Context, c *client.Client, route models.MailboxRoute, delimiter string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.processMailbox")
	defer span.Finish()
	tracing.TagServerHost(span, s.cfg.Host)
	tracing.TagMailbox(span, route.Name)

	c.Timeout = 30 * time.Second
	_, err := c.Select(route.Name, false)
	c.Timeout = 0
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	c.Timeout = 30 * time.Second
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if len(uids) == 0 {
		return nil
	}
	uids = capBatch(uids, s.runtime.MaxQueryMessages)
	span.LogFields(tracingLog.Int("messages", len(uids)))
	s.log.Infof("[%s][%s] processing %d unseen message(s)", s.cfg.Host, route.Name, len(uids))

	fetched, err := s.fetchHeaders(c, uids)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !fetched[uid] {
			// Vanished between search and fetch
			s.log.Infof("[%s][%s] uid %d disappeared before fetch, skipping", s.cfg.Host, route.Name, uid)
			continue
		}

		outcome := s.dispatchMessage(ctx, c, uid)
		s.settleMessage(c, uid, route, delimiter, outcome)
	}

	return nil
}

// fetchHeaders fetches HEADER and BODYSTRUCTURE for the batch without
// PEEK, which marks the messages seen. Returns the set of UIDs the
// server still knows.
func (s *Supervisor) fetchHeaders(c *client.Client, uids []uint32) (map[uint32]bool, error) {
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	headerSection := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier}}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchBodyStructure,
		headerSection.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	c.Timeout = 60 * time.Second
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	fetched := make(map[uint32]bool)
	for msg := range messages {
		fetched[msg.Uid] = true
	}

	c.Timeout = 0
	if err := <-done; err != nil {
		return nil, err
	}

	return fetched, nil
}

// dispatchMessage fetches the full body of one message and runs the
// processing pipeline on it.
func (s *Supervisor) dispatchMessage(ctx context.Context, c *client.Client, uid uint32) enum.DispatchOutcome {
	raw, err := s.fetchFullBody(c, uid)
	if err != nil {
		if isConnectionError(err) {
			// The connection is gone. The header fetch already marked the
			// message seen, so it stays in the inbox unmoved for an
			// operator to re-handle; no move on a dead session.
			s.log.Errorf("[%s] uid %d: body fetch failed: %v", s.cfg.Host, uid, err)
			return enum.DispatchSkipped
		}
		s.log.Errorf("[%s] uid %d: body fetch failed: %v", s.cfg.Host, uid, err)
		return enum.DispatchRejected
	}
	if len(raw) == 0 {
		return enum.DispatchSkipped
	}

	return s.processor.Dispatch(ctx, uid, raw)
}

func (s *Supervisor) fetchFullBody(c *client.Client, uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	c.Timeout = 60 * time.Second
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if literal := msg.GetBody(section); literal != nil {
			data, err := io.ReadAll(literal)
			if err == nil {
				raw = data
			}
		}
	}

	c.Timeout = 0
	if err := <-done; err != nil {
		return nil, err
	}

	return raw, nil
}

// capBatch limits one poll cycle to at most max messages, oldest first.
func capBatch(uids []uint32, max int) []uint32 {
	if len(uids) > max {
		return uids[:max]
	}
	return uids
}

// moveDestination resolves the single move of a settled message: the
// success child for processed, the failure child for rejected, no move
// for skipped.
func moveDestination(route models.MailboxRoute, delimiter string, outcome enum.DispatchOutcome) (string, bool) {
	switch outcome {
	case enum.DispatchProcessed:
		return route.Name + delimiter + route.Success, true
	case enum.DispatchRejected:
		return route.Name + delimiter + route.Failure, true
	default:
		return "", false
	}
}

// settleMessage performs the single compensating move of a dispatched
// message. Move failures are logged and do not cascade.
func (s *Supervisor) settleMessage(c *client.Client, uid uint32, route models.MailboxRoute, delimiter string, outcome enum.DispatchOutcome) {
	dest, move := moveDestination(route, delimiter, outcome)
	if !move {
		return
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	c.Timeout = 30 * time.Second
	err := c.UidMove(seqSet, dest)
	c.Timeout = 0
	if err != nil {
		s.log.Errorf("[%s][%s] uid %d: move to %q failed: %v", s.cfg.Host, route.Name, uid, dest, err)
	} else {
		s.log.Infof("[%s][%s] uid %d: %s, moved to %q", s.cfg.Host, route.Name, uid, outcome, dest)
	}

	s.recordOutcome(route.Name, outcome)
}

func (s *Supervisor) recordOutcome(mailbox string, outcome enum.DispatchOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[mailbox]
	if !ok {
		stats = &interfaces.MailboxStats{}
		s.stats[mailbox] = stats
	}
	switch outcome {
	case enum.DispatchProcessed:
		stats.Processed++
	case enum.DispatchRejected:
		stats.Failed++
	}
	stats.LastPoll = time.Now()
}

package interfaces

import (
	"context"
	"time"

	"github.com/zetadesk/mailgate/internal/enum"
)

// IngestService owns the set of IMAP connection supervisors.
type IngestService interface {
	Start(ctx context.Context) error
	Stop() error
	Status() map[string]ConnectionStatus
	// AuditMailboxes re-verifies the mailbox tree of every connection and
	// logs drift. Used by the cron audit job.
	AuditMailboxes(ctx context.Context)
}

type ConnectionStatus struct {
	Host      string                  `json:"host"`
	State     string                  `json:"state"`
	LastError string                  `json:"lastError,omitempty"`
	LastPoll  time.Time               `json:"lastPoll"`
	Mailboxes map[string]MailboxStats `json:"mailboxes"`
}

type MailboxStats struct {
	Processed uint64    `json:"processed"`
	Failed    uint64    `json:"failed"`
	LastPoll  time.Time `json:"lastPoll"`
}

// MessageProcessor turns one fetched raw message into a settled outcome.
// Implementations must not panic and must not abort the process; parse
// failures settle as DispatchRejected.
type MessageProcessor interface {
	Dispatch(ctx context.Context, uid uint32, raw []byte) enum.DispatchOutcome
}

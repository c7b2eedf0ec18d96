package interfaces

import (
	"context"
	"time"

	"github.com/zetadesk/mailgate/internal/enum"
	"github.com/zetadesk/mailgate/internal/models"
)

// TicketingService is the outbound REST contract of the ticketing system.
// All calls authenticate per request with HTTP basic auth; responses use
// the ReturnCode/content envelope.
type TicketingService interface {
	// GetPersonByEmail resolves a sender address to a person record.
	// Returns er.ErrPersonNotFound when the lookup succeeds but matches
	// nobody.
	GetPersonByEmail(ctx context.Context, email string) (*models.Person, error)

	// GetIssue fetches an existing issue by its SRQ id.
	GetIssue(ctx context.Context, issueID string) (*models.Issue, error)

	// CreateIssue creates a new issue and returns its id.
	CreateIssue(ctx context.Context, issue *models.Issue) (string, error)

	// CreateComment creates a comment on an existing issue and returns
	// the comment id. An empty AuthorID creates an anonymous comment.
	CreateComment(ctx context.Context, comment *models.Comment) (string, error)

	// UploadAttachment streams one attachment to the entity's attachment
	// collection.
	UploadAttachment(ctx context.Context, entity enum.EntityType, entityID string, attachment models.Attachment) error

	// CountRecentIssuesByAuthor returns how many issues the person created
	// within the given time span, via the raw database query endpoint.
	CountRecentIssuesByAuthor(ctx context.Context, personID string, span time.Duration) (int, error)

	// GetPersonUTCOffset returns the person's timezone offset, e.g.
	// "+03:00", via the raw database query endpoint.
	GetPersonUTCOffset(ctx context.Context, personID string) (string, error)
}

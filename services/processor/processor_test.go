package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zetadesk/mailgate/internal/enum"
	er "github.com/zetadesk/mailgate/internal/errors"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// fakeTicketing records calls and answers from canned data.
type fakeTicketing struct {
	mu sync.Mutex

	persons map[string]*models.Person
	issues  map[string]*models.Issue

	personErr    error
	issueErr     error
	createErr    error
	countResult  int
	countErr     error
	offsetResult string
	offsetErr    error

	createdIssues   []*models.Issue
	createdComments []*models.Comment
	uploads         []models.Attachment
	uploadEntities  []enum.EntityType
	countCalls      int
	offsetCalls     int
}

func newFakeTicketing() *fakeTicketing {
	return &fakeTicketing{
		persons: map[string]*models.Person{},
		issues:  map[string]*models.Issue{},
	}
}

func (f *fakeTicketing) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	if f.personErr != nil {
		return nil, f.personErr
	}
	person, ok := f.persons[email]
	if !ok {
		return nil, er.ErrPersonNotFound
	}
	return person, nil
}

func (f *fakeTicketing) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	issue, ok := f.issues[issueID]
	if !ok {
		return nil, er.ErrIssueNotFound
	}
	return issue, nil
}

func (f *fakeTicketing) CreateIssue(ctx context.Context, issue *models.Issue) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdIssues = append(f.createdIssues, issue)
	return "SRQ000000000099", nil
}

func (f *fakeTicketing) CreateComment(ctx context.Context, comment *models.Comment) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdComments = append(f.createdComments, comment)
	return "C100", nil
}

func (f *fakeTicketing) UploadAttachment(ctx context.Context, entity enum.EntityType, entityID string, attachment models.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, attachment)
	f.uploadEntities = append(f.uploadEntities, entity)
	return nil
}

func (f *fakeTicketing) CountRecentIssuesByAuthor(ctx context.Context, personID string, span time.Duration) (int, error) {
	f.mu.Lock()
	f.countCalls++
	f.mu.Unlock()
	return f.countResult, f.countErr
}

func (f *fakeTicketing) GetPersonUTCOffset(ctx context.Context, personID string) (string, error) {
	f.mu.Lock()
	f.offsetCalls++
	f.mu.Unlock()
	return f.offsetResult, f.offsetErr
}

func testRuntimeConfig() *models.RuntimeConfig {
	return &models.RuntimeConfig{
		MaxQueryMessages: 15,
		QueryInterval:    5000,
		DefaultIssueAttrs: models.DefaultIssueAttrs{
			AuthorID:   "system-author",
			StatusID:   "status-new",
			CategoryID: "cat-mail",
			PriorityID: "prio-normal",
			SourceID:   "src-email",
		},
		OnPersonNotFound: models.OnPersonNotFound{CreateSystemIssue: true},
		Spam: models.SpamConfig{
			TimeSpan:       60,
			MaxNumOfIssues: 5,
		},
	}
}

func testMessage(subject string) []byte {
	raw := "From: Jane Doe <jane@example.com>\r\n" +
		"To: support@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello support\r\n"
	return []byte(raw)
}

const attachmentMessage = "From: Alice <alice@x.example>\r\n" +
	"To: support@example.com\r\n" +
	"Subject: Printer broken\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Printer dead\r\nBest regards\r\nAlice\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf; name=\"a.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"a.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"MTIzNDU2Nzg5MA==\r\n" +
	"--b1--\r\n"

func TestDispatch_FullIssuePipeline(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.TruncateCommentsAfterDelimiter = true
	cfg.CommentDelimiters = []models.Delimiter{{Pattern: "Best regards"}}
	cfg.JoinAttachments = true
	cfg.JoinOriginalAsEml = true
	ticketing := newFakeTicketing()
	ticketing.persons["alice@x.example"] = &models.Person{ID: "PRS000000000042"}
	p := NewProcessor(cfg, ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 11, []byte(attachmentMessage))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Len(t, ticketing.createdIssues, 1)
	issue := ticketing.createdIssues[0]
	assert.Equal(t, "Printer broken", issue.Subject)
	assert.Equal(t, "Printer dead<br>", issue.Description)
	assert.Equal(t, "PRS000000000042", issue.AuthorID)

	// One decoded attachment plus the raw EML
	assert.Len(t, ticketing.uploads, 2)
	names := []string{ticketing.uploads[0].FileName, ticketing.uploads[1].FileName}
	assert.Contains(t, names, "a.pdf")
	assert.Contains(t, names, "11-message.eml")
	assert.Equal(t, []enum.EntityType{enum.EntityIssue, enum.EntityIssue}, ticketing.uploadEntities)
}

func TestDispatch_SpamCountRejectsIssue(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.persons["jane@example.com"] = &models.Person{ID: "P1"}
	ticketing.countResult = 7
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("new request"))

	assert.Equal(t, enum.DispatchRejected, outcome)
	assert.Empty(t, ticketing.createdIssues)
	assert.Empty(t, ticketing.createdComments)
}

func TestDispatch_UnparsableMessageRejected(t *testing.T) {
	ticketing := newFakeTicketing()
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 1, []byte{})

	assert.Equal(t, enum.DispatchRejected, outcome)
	assert.Empty(t, ticketing.createdIssues)
	assert.Empty(t, ticketing.createdComments)
}

func TestDispatch_KnownSenderCreatesIssue(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.persons["jane@example.com"] = &models.Person{ID: "P1", Email: "jane@example.com"}
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("printer on fire"))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Len(t, ticketing.createdIssues, 1)
	issue := ticketing.createdIssues[0]
	assert.Equal(t, "printer on fire", issue.Subject)
	assert.Equal(t, "P1", issue.AuthorID)
	assert.Equal(t, "status-new", issue.StatusID)
	assert.Empty(t, ticketing.createdComments)
}

func TestDispatch_SubjectReferenceCreatesComment(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.persons["jane@example.com"] = &models.Person{ID: "P1"}
	ticketing.issues["SRQ000000000042"] = &models.Issue{ID: "SRQ000000000042"}
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("Re: [SRQ000000000042] printer on fire"))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Empty(t, ticketing.createdIssues)
	assert.Len(t, ticketing.createdComments, 1)
	comment := ticketing.createdComments[0]
	assert.Equal(t, "SRQ000000000042", comment.ForeignKey)
	assert.Equal(t, "P1", comment.AuthorID)
}

func TestDispatch_StaleSubjectReferenceFallsBackToIssue(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.persons["jane@example.com"] = &models.Person{ID: "P1"}
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	// The referenced issue does not exist anymore
	outcome := p.Dispatch(context.Background(), 7, testMessage("Re: SRQ000000000042"))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Len(t, ticketing.createdIssues, 1)
	assert.Empty(t, ticketing.createdComments)
}

func TestDispatch_UnknownSenderCommentIsAnonymous(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.issues["SRQ000000000042"] = &models.Issue{ID: "SRQ000000000042"}
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("Re: SRQ000000000042"))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Len(t, ticketing.createdComments, 1)
	assert.Empty(t, ticketing.createdComments[0].AuthorID)
	// Anonymous comments skip the spam gate entirely
	assert.Zero(t, ticketing.countCalls)
}

func TestDispatch_UnknownSenderSystemIssue(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.OnPersonNotFound = models.OnPersonNotFound{CreateSystemIssue: true}
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("new request"))

	assert.Equal(t, enum.DispatchProcessed, outcome)
	assert.Len(t, ticketing.createdIssues, 1)
	assert.Equal(t, "system-author", ticketing.createdIssues[0].AuthorID)
}

func TestDispatch_UnknownSenderMoveToFailure(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.OnPersonNotFound = models.OnPersonNotFound{MoveMsgToFailureFolder: true}
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("new request"))

	assert.Equal(t, enum.DispatchRejected, outcome)
	assert.Empty(t, ticketing.createdIssues)
}

func TestDispatch_SenderLookupErrorRejected(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.personErr = assert.AnError
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("new request"))

	assert.Equal(t, enum.DispatchRejected, outcome)
	assert.Empty(t, ticketing.createdIssues)
}

func TestDispatch_CreateIssueErrorRejected(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.persons["jane@example.com"] = &models.Person{ID: "P1"}
	ticketing.createErr = assert.AnError
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	outcome := p.Dispatch(context.Background(), 7, testMessage("new request"))

	assert.Equal(t, enum.DispatchRejected, outcome)
}

func TestCheckSpam_WhitelistedAuthorSkipsCountQuery(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Spam.DontCheckAuthors = []string{"P1"}
	ticketing := newFakeTicketing()
	ticketing.countResult = 1000
	p := NewProcessor(cfg, ticketing, getLogger())

	ok := p.checkSpam(context.Background(), "P1", &models.InboundMessage{})

	assert.True(t, ok)
	assert.Zero(t, ticketing.countCalls)
}

func TestCheckSpam_HeaderRejects(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Spam.Headers = []string{"X-Autoreply"}
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())
	msg := &models.InboundMessage{
		Headers: map[string][]string{"x-autoreply": {"yes"}},
	}

	ok := p.checkSpam(context.Background(), "P1", msg)

	assert.False(t, ok)
	assert.Zero(t, ticketing.countCalls)
}

func TestCheckSpam_CountAboveMaxRejects(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Spam.MaxNumOfIssues = 5
	ticketing := newFakeTicketing()
	ticketing.countResult = 6
	p := NewProcessor(cfg, ticketing, getLogger())

	ok := p.checkSpam(context.Background(), "P1", &models.InboundMessage{})

	assert.False(t, ok)
}

func TestCheckSpam_CountAtMaxPasses(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Spam.MaxNumOfIssues = 5
	ticketing := newFakeTicketing()
	ticketing.countResult = 5
	p := NewProcessor(cfg, ticketing, getLogger())

	ok := p.checkSpam(context.Background(), "P1", &models.InboundMessage{})

	assert.True(t, ok)
}

func TestCheckSpam_CountQueryFailurePasses(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.countErr = assert.AnError
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())

	ok := p.checkSpam(context.Background(), "P1", &models.InboundMessage{})

	assert.True(t, ok)
}

func TestAdjustDateFields_AppendsOffset(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.offsetResult = "+03:00"
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())
	fields := map[string]string{
		"due":     "2024-07-03T14:30:00",
		"project": "alpha",
	}

	p.adjustDateFields(context.Background(), "P1", fields)

	assert.Equal(t, "2024-07-03T14:30:00+03:00", fields["due"])
	assert.Equal(t, "alpha", fields["project"])
}

func TestAdjustDateFields_LookupFailureFallsBackToUTC(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.offsetErr = assert.AnError
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())
	fields := map[string]string{"due": "2024-07-03T14:30:00"}

	p.adjustDateFields(context.Background(), "P1", fields)

	assert.Equal(t, "2024-07-03T14:30:00+00:00", fields["due"])
}

func TestAdjustDateFields_NoDateSkipsLookup(t *testing.T) {
	ticketing := newFakeTicketing()
	p := NewProcessor(testRuntimeConfig(), ticketing, getLogger())
	fields := map[string]string{"project": "alpha"}

	p.adjustDateFields(context.Background(), "P1", fields)

	assert.Zero(t, ticketing.offsetCalls)
}

func TestUploadAttachments_Disabled(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.JoinAttachments = false
	cfg.JoinOriginalAsEml = true
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())
	msg := &models.InboundMessage{
		UID:         3,
		Raw:         []byte("raw"),
		Attachments: []models.Attachment{{FileName: "a.pdf"}},
	}

	p.uploadAttachments(context.Background(), msg, enum.EntityIssue, "SRQ000000000001", true)

	assert.Empty(t, ticketing.uploads)
}

func TestUploadAttachments_NewIssueGetsEml(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.JoinAttachments = true
	cfg.JoinOriginalAsEml = true
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())
	msg := &models.InboundMessage{
		UID:         3,
		Raw:         []byte("raw message"),
		Attachments: []models.Attachment{{FileName: "a.pdf"}},
	}

	p.uploadAttachments(context.Background(), msg, enum.EntityIssue, "SRQ000000000001", true)

	assert.Len(t, ticketing.uploads, 2)
	names := []string{ticketing.uploads[0].FileName, ticketing.uploads[1].FileName}
	assert.Contains(t, names, "a.pdf")
	assert.Contains(t, names, "3-message.eml")
}

func TestUploadAttachments_CommentGetsNoEml(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.JoinAttachments = true
	cfg.JoinOriginalAsEml = true
	ticketing := newFakeTicketing()
	p := NewProcessor(cfg, ticketing, getLogger())
	msg := &models.InboundMessage{
		UID:         3,
		Raw:         []byte("raw message"),
		Attachments: []models.Attachment{{FileName: "a.pdf"}},
	}

	p.uploadAttachments(context.Background(), msg, enum.EntityComment, "C1", false)

	assert.Len(t, ticketing.uploads, 1)
	assert.Equal(t, "a.pdf", ticketing.uploads[0].FileName)
}

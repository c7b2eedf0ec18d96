package ticketing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newTestService(t *testing.T, handler http.HandlerFunc) (*ticketingService, func()) {
	ts := httptest.NewServer(handler)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	svc := NewTicketingService(&models.RestConfig{
		Protocol:   "http",
		Host:       u.Hostname(),
		Port:       port,
		URL:        "api/v1",
		DBQueryURI: "db",
		Username:   "svc",
		Password:   "secret",
	}, getLogger())

	return svc.(*ticketingService), ts.Close
}

func TestGetPersonByEmail_Found(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/Persons", r.URL.Path)
		assert.Equal(t, "jane@example.com", r.URL.Query().Get("email"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)

		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZPerson","content":[{"ZPerson":{"id":"P1","email":"jane@example.com"}}]}`))
	})
	defer done()

	person, err := svc.GetPersonByEmail(context.Background(), "jane@example.com")

	require.NoError(t, err)
	assert.Equal(t, "P1", person.ID)
}

func TestGetPersonByEmail_NotFound(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZPerson","content":[]}`))
	})
	defer done()

	_, err := svc.GetPersonByEmail(context.Background(), "nobody@example.com")

	assert.True(t, errors.Is(err, er.ErrPersonNotFound))
}

func TestGetPersonByEmail_NonZeroReturnCode(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ReturnCode":2,"Messages":["backend unavailable"]}`))
	})
	defer done()

	_, err := svc.GetPersonByEmail(context.Background(), "jane@example.com")

	require.Error(t, err)
	assert.False(t, errors.Is(err, er.ErrPersonNotFound))
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestGetIssue_Found(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/Issues/SRQ000000000042", r.URL.Path)
		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZIssue","content":[{"ZIssue":{"id":"SRQ000000000042"}}]}`))
	})
	defer done()

	issue, err := svc.GetIssue(context.Background(), "SRQ000000000042")

	require.NoError(t, err)
	assert.Equal(t, "SRQ000000000042", issue.ID)
}

func TestGetIssue_NotFound(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZIssue","content":[]}`))
	})
	defer done()

	_, err := svc.GetIssue(context.Background(), "SRQ000000000042")

	assert.True(t, errors.Is(err, er.ErrIssueNotFound))
}

func TestCreateIssue(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/Issues", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZIssue","content":[{"ZIssue":{"id":"SRQ000000000077"}}]}`))
	})
	defer done()

	id, err := svc.CreateIssue(context.Background(), &models.Issue{Subject: "help"})

	require.NoError(t, err)
	assert.Equal(t, "SRQ000000000077", id)
}

func TestCreateComment(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/Comments", r.URL.Path)
		w.Write([]byte(`{"ReturnCode":0,"ResourceName":"ZComment","content":[{"ZComment":{"id":"C9"}}]}`))
	})
	defer done()

	id, err := svc.CreateComment(context.Background(), &models.Comment{Comment: "hello", ForeignKey: "SRQ000000000042"})

	require.NoError(t, err)
	assert.Equal(t, "C9", id)
}

func TestUploadAttachment(t *testing.T) {
	var gotDisposition, gotContentType, gotPath string
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDisposition = r.Header.Get("Content-Disposition")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	})
	defer done()

	err := svc.UploadAttachment(context.Background(), enum.EntityIssue, "SRQ000000000042", models.Attachment{
		FileName:    "Bericht über März.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF"),
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/Issues/SRQ000000000042/attachments", gotPath)
	assert.Equal(t, "application/pdf", gotContentType)
	assert.Equal(t, "attachment; filename*=UTF-8''Bericht%20%C3%BCber%20M%C3%A4rz.pdf", gotDisposition)
}

func TestUploadAttachment_CommentPathAndDefaults(t *testing.T) {
	var gotContentType, gotPath string
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})
	defer done()

	err := svc.UploadAttachment(context.Background(), enum.EntityComment, "C9", models.Attachment{
		FileName: "notes.txt",
		Content:  []byte("hi"),
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/Comments/C9/attachments", gotPath)
	assert.Equal(t, "application/octet-stream", gotContentType)
}

func TestUploadAttachment_ServerErrorReported(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	})
	defer done()

	err := svc.UploadAttachment(context.Background(), enum.EntityIssue, "SRQ000000000042", models.Attachment{
		FileName: "a.bin",
		Content:  []byte("x"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
}

func TestCountRecentIssuesByAuthor(t *testing.T) {
	var gotQuery string
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/db", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		gotQuery = string(body)
		w.Write([]byte(`{"ReturnCode":0,"content":[{"COUNT(*)":7}]}`))
	})
	defer done()

	count, err := svc.CountRecentIssuesByAuthor(context.Background(), "P1", 0)

	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Contains(t, gotQuery, "SELECT COUNT(*) FROM ZIssue WHERE authorId = 'P1'")
}

func TestCountRecentIssuesByAuthor_EscapesQuotes(t *testing.T) {
	var gotQuery string
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotQuery = string(body)
		w.Write([]byte(`{"ReturnCode":0,"content":[{"COUNT(*)":"0"}]}`))
	})
	defer done()

	_, err := svc.CountRecentIssuesByAuthor(context.Background(), "P'1", 0)

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "authorId = 'P''1'")
}

func TestGetPersonUTCOffset(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ReturnCode":0,"content":[{"utcOffset":"+03:00"}]}`))
	})
	defer done()

	offset, err := svc.GetPersonUTCOffset(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, "+03:00", offset)
}

func TestGetPersonUTCOffset_NoRows(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ReturnCode":0,"content":[]}`))
	})
	defer done()

	_, err := svc.GetPersonUTCOffset(context.Background(), "P1")

	assert.Error(t, err)
}

func TestEncodeRFC5987(t *testing.T) {
	assert.Equal(t, "plain-name_1.txt", encodeRFC5987("plain-name_1.txt"))
	assert.Equal(t, "a%20b", encodeRFC5987("a b"))
	assert.Equal(t, "%C3%A4", encodeRFC5987("ä"))
	assert.Equal(t, "file%27s.txt", encodeRFC5987("file's.txt"))
}

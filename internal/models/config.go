package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	er "github.com/zetadesk/mailgate/internal/errors"
)

// MailboxRoute names the success/failure children of a watched mailbox.
// Both must exist as direct sub-mailboxes under the server's hierarchy
// delimiter.
type MailboxRoute struct {
	Name    string `yaml:"name"`
	Success string `yaml:"success"`
	Failure string `yaml:"failure"`
}

// ServerConfig holds one IMAP server entry. Mailboxes keep configuration
// order; polling iterates them in this order.
type ServerConfig struct {
	Host        string         `yaml:"host"`
	Port        int            `yaml:"port"`
	Username    string         `yaml:"username"`
	Password    string         `yaml:"password"`
	TLS         bool           `yaml:"tls"`
	TLSInsecure bool           `yaml:"tlsInsecure"`
	Mailboxes   []MailboxRoute `yaml:"mailboxes"`
}

func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("server host is required")
	}
	if c.Username == "" {
		return errors.New("server username is required")
	}
	if len(c.Mailboxes) == 0 {
		return errors.Errorf("server %s has no mailboxes configured", c.Host)
	}
	for _, mb := range c.Mailboxes {
		if mb.Name == "" || mb.Success == "" || mb.Failure == "" {
			return errors.Errorf("server %s: mailbox entries need name, success and failure", c.Host)
		}
	}
	return nil
}

// AttributeType is the type tag of a permitted body attribute.
type AttributeType string

const (
	AttributeDate   AttributeType = "date"
	AttributeID     AttributeType = "id"
	AttributeString AttributeType = "string"
)

// Delimiter is one comment delimiter: a literal substring or, when Regex
// is set, a regular expression.
type Delimiter struct {
	Pattern string `yaml:"pattern"`
	Regex   bool   `yaml:"regex"`

	compiled *regexp.Regexp
}

// Compile prepares the regex form. Literal delimiters compile to nil.
func (d *Delimiter) Compile() error {
	if !d.Regex {
		return nil
	}
	re, err := regexp.Compile(d.Pattern)
	if err != nil {
		return errors.Wrapf(err, "invalid delimiter pattern %q", d.Pattern)
	}
	d.compiled = re
	return nil
}

// Match returns the index of the first match in s, or -1.
func (d *Delimiter) Match(s string) int {
	if d.Regex {
		if d.compiled == nil {
			if d.Compile() != nil {
				return -1
			}
		}
		loc := d.compiled.FindStringIndex(s)
		if loc == nil {
			return -1
		}
		return loc[0]
	}
	if d.Pattern == "" {
		return -1
	}
	return strings.Index(s, d.Pattern)
}

// Matches reports whether the delimiter occurs anywhere in s.
func (d *Delimiter) Matches(s string) bool {
	return d.Match(s) >= 0
}

// DefaultIssueAttrs supplies fallback ids for system-created issues.
type DefaultIssueAttrs struct {
	AuthorID   string `yaml:"authorId"`
	StatusID   string `yaml:"statusId"`
	CategoryID string `yaml:"categoryId"`
	PriorityID string `yaml:"priorityId"`
	SourceID   string `yaml:"sourceId"`
}

// OnPersonNotFound selects the issue-flow branch for unknown senders.
// Exactly one flag must be set.
type OnPersonNotFound struct {
	CreateSystemIssue      bool `yaml:"createSystemIssue"`
	MoveMsgToFailureFolder bool `yaml:"moveMsgToFailureFolder"`
}

func (o OnPersonNotFound) Validate() error {
	if o.CreateSystemIssue == o.MoveMsgToFailureFolder {
		return errors.New("onPersonNotFound: exactly one of createSystemIssue and moveMsgToFailureFolder must be set")
	}
	return nil
}

// SpamConfig configures the spam gate.
type SpamConfig struct {
	TimeSpan         int      `yaml:"timeSpan"` // minutes
	MaxNumOfIssues   int      `yaml:"maxNumOfIssues"`
	Headers          []string `yaml:"headers"`
	DontCheckAuthors []string `yaml:"dontCheckAuthors"`
}

// RuntimeConfig is the processing configuration shared by all servers.
type RuntimeConfig struct {
	MaxQueryMessages               int                      `yaml:"maxQueryMessages"`
	QueryInterval                  int                      `yaml:"queryInterval"` // milliseconds
	JoinOriginalAsEml              bool                     `yaml:"joinOriginalAsEml"`
	JoinAttachments                bool                     `yaml:"joinAttachments"`
	TruncateCommentsAfterDelimiter bool                     `yaml:"truncateCommentsAfterDelimiter"`
	CommentDelimiters              []Delimiter              `yaml:"commentDelimiters"`
	PermittedBodyAttributes        map[string]AttributeType `yaml:"permittedBodyAttributes"`
	DefaultIssueAttrs              DefaultIssueAttrs        `yaml:"defaultIssueAttrs"`
	OnPersonNotFound               OnPersonNotFound         `yaml:"onPersonNotFound"`
	Spam                           SpamConfig               `yaml:"spam"`
}

func (c *RuntimeConfig) Validate() error {
	if c.MaxQueryMessages <= 0 {
		return errors.New("maxQueryMessages must be positive")
	}
	if c.QueryInterval <= 0 {
		return errors.New("queryInterval must be positive")
	}
	for k, t := range c.PermittedBodyAttributes {
		switch t {
		case AttributeDate, AttributeID, AttributeString:
		default:
			return errors.Errorf("permittedBodyAttributes[%s]: unknown type %q", k, t)
		}
	}
	for i := range c.CommentDelimiters {
		if err := c.CommentDelimiters[i].Compile(); err != nil {
			return err
		}
	}
	return c.OnPersonNotFound.Validate()
}

func (c *RuntimeConfig) QueryIntervalDuration() time.Duration {
	return time.Duration(c.QueryInterval) * time.Millisecond
}

func (c *RuntimeConfig) SpamTimeSpanDuration() time.Duration {
	return time.Duration(c.Spam.TimeSpan) * time.Minute
}

// RestConfig locates the ticketing API. All paths resolve under
// <protocol>://<host>:<port>/<url>/ with HTTP basic auth.
type RestConfig struct {
	Protocol   string `yaml:"protocol"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	URL        string `yaml:"url"`
	DBQueryURI string `yaml:"dbQueryUri"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TimeoutSec int    `yaml:"timeoutSec"`
}

func (c *RestConfig) Validate() error {
	if c == nil || c.Host == "" {
		return er.ErrRestConfigMissing
	}
	if c.Protocol == "" {
		return errors.New("rest protocol is required")
	}
	return nil
}

// ServiceConfig is the static configuration file root.
type ServiceConfig struct {
	Servers []ServerConfig `yaml:"servers"`
	Runtime RuntimeConfig  `yaml:"runtime"`
	Rest    RestConfig     `yaml:"rest"`
}

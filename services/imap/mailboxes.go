package imap

import (
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/internal/models"
)

// listMailboxes fetches the full hierarchy and returns the server's
// hierarchy delimiter plus the set of mailbox names.
func (s *Supervisor) listMailboxes(c *client.Client) (string, map[string]bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	c.Timeout = 30 * time.Second
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	delimiter := "/"
	names := make(map[string]bool)
	for m := range mailboxes {
		names[m.Name] = true
		if m.Delimiter != "" {
			delimiter = m.Delimiter
		}
	}

	c.Timeout = 0
	if err := <-done; err != nil {
		return "", nil, errors.Wrapf(err, "[%s] error listing mailboxes", s.cfg.Host)
	}

	return delimiter, names, nil
}

// CheckMailboxTree verifies that each configured mailbox exists at the
// root and that its success and failure children exist as direct
// sub-mailboxes. Routes split into two disjoint lists, both keeping
// configuration order.
func CheckMailboxTree(routes []models.MailboxRoute, names map[string]bool, delimiter string) (passed, failed []models.MailboxRoute) {
	for _, route := range routes {
		if names[route.Name] &&
			names[route.Name+delimiter+route.Success] &&
			names[route.Name+delimiter+route.Failure] {
			passed = append(passed, route)
		} else {
			failed = append(failed, route)
		}
	}
	return passed, failed
}

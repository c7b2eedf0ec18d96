package errors

import "github.com/pkg/errors"

var (
	// configuration errors
	ErrRestConfigMissing = errors.New("rest endpoint configuration is missing")
	ErrNoMailboxPassed   = errors.New("no configured mailbox passed the structure check")

	// ticketing errors
	ErrPersonNotFound = errors.New("person not found")
	ErrIssueNotFound  = errors.New("issue not found")

	// pipeline errors
	ErrSpamRejected = errors.New("message rejected by spam gate")
)

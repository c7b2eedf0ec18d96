package models

import "github.com/zetadesk/mailgate/internal/utils"

// Attachment is a decoded MIME part carried over to the ticketing API.
type Attachment struct {
	FileName         string
	ContentType      string
	TransferEncoding string
	Length           int
	Content          []byte
}

// InboundMessage is one mail message as it moves through the pipeline.
// Headers are keyed lower-case; Body holds the post-truncation text and
// ParsedFields the extracted permitted attributes (dates already in ISO
// form).
type InboundMessage struct {
	UID          uint32
	Subject      string
	From         []string
	Headers      map[string][]string
	TextBody     string
	HTMLBody     string
	Body         string
	ParsedFields map[string]string
	Attachments  []Attachment
	Raw          []byte
}

// SenderAddress returns the bare address of the first From header.
func (m *InboundMessage) SenderAddress() string {
	if len(m.From) == 0 {
		return ""
	}
	return utils.ExtractEmailAddress(m.From[0])
}

// HasHeader reports whether the named header is present, matched
// case-insensitively.
func (m *InboundMessage) HasHeader(name string) bool {
	_, ok := m.Headers[utils.NormalizeHeaderKey(name)]
	return ok
}

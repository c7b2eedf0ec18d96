package processor

import (
	"bytes"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/utils"
)

// ParseMessage parses one raw RFC822 byte stream into an InboundMessage:
// lower-cased header map, text/html bodies and decoded attachments.
func ParseMessage(uid uint32, raw []byte) (*models.InboundMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse message")
	}

	headers := make(map[string][]string)
	for _, key := range env.GetHeaderKeys() {
		values := env.GetHeaderValues(key)
		if len(values) > 0 {
			headers[utils.NormalizeHeaderKey(key)] = values
		}
	}

	msg := &models.InboundMessage{
		UID:          uid,
		Subject:      env.GetHeader("Subject"),
		From:         env.GetHeaderValues("From"),
		Headers:      headers,
		TextBody:     env.Text,
		HTMLBody:     env.HTML,
		ParsedFields: make(map[string]string),
		Raw:          raw,
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, partToAttachment(part, part.Disposition))
	}
	for _, part := range env.Inlines {
		// Inline images travel along like regular attachments
		msg.Attachments = append(msg.Attachments, partToAttachment(part, "inline"))
	}

	return msg, nil
}

func partToAttachment(part *enmime.Part, disposition string) models.Attachment {
	fileName := part.FileName
	if fileName == "" {
		fileName = "attachment"
	}
	return models.Attachment{
		FileName:         fileName,
		ContentType:      part.ContentType,
		TransferEncoding: part.Header.Get("Content-Transfer-Encoding"),
		Length:           len(part.Content),
		Content:          part.Content,
	}
}

package gmail

import (
	"bytes"
	"encoding/base64"
	"mime"
	"strings"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	gmailapi "google.golang.org/api/gmail/v1"
)

// buildRawMessage renders a plain-text RFC 2822 message and base64url encodes
// it for users.messages.send.
func buildRawMessage(email *domain.OutboundEmail) string {
	var buf bytes.Buffer
	writeHeader(&buf, "To", email.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	if email.InReplyTo != "" {
		writeHeader(&buf, "In-Reply-To", email.InReplyTo)
		writeHeader(&buf, "References", email.InReplyTo)
	}
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="UTF-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")
	buf.WriteString(normalizeNewlines(email.Body))

	return base64.URLEncoding.EncodeToString(buf.Bytes())
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	// Header injection guard: a value never spans lines.
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// toEmailMessage projects a message fetched with format=full.
func toEmailMessage(msg *gmailapi.Message) *domain.EmailMessage {
	out := &domain.EmailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		out.Timestamp = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return out
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			out.Subject = decodeHeader(h.Value)
		case "from":
			out.Sender = decodeHeader(h.Value)
		case "message-id":
			out.MessageID = h.Value
		}
	}
	out.Body = plainTextBody(msg.Payload)
	return out
}

// plainTextBody returns the first text/plain part found depth-first.
func plainTextBody(part *gmailapi.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(part.MimeType), "text/plain") && part.Body != nil && part.Body.Data != "" {
		if data, ok := decodeBase64URL(part.Body.Data); ok {
			return strings.TrimSpace(string(data))
		}
	}
	for _, child := range part.Parts {
		if body := plainTextBody(child); body != "" {
			return body
		}
	}
	return ""
}

// decodeBase64URL accepts both padded and unpadded base64url, Gmail emits either.
func decodeBase64URL(s string) ([]byte, bool) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, true
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	return data, err == nil
}

func decodeHeader(v string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

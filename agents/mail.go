package agents

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// maxPartDepth bounds multipart nesting
const maxPartDepth = 8

type parsedEmail struct {
	From    string
	Subject string
	Date    string
	header  mail.Header
	body    io.Reader
}

var headerDecoder = new(mime.WordDecoder)

// parseEmail reads RFC 5322 headers. The body is left unread until
// bodyText is called.
func parseEmail(text string) (*parsedEmail, error) {
	msg, err := mail.ReadMessage(strings.NewReader(separateBody(text)))
	if err != nil {
		return nil, err
	}
	return &parsedEmail{
		From:    decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Date:    msg.Header.Get("Date"),
		header:  msg.Header,
		body:    msg.Body,
	}, nil
}

// separateBody inserts the blank line between headers and body when the
// body starts right after the last header. The first line that is neither a
// "Name: value" field nor a folded continuation begins the body.
func separateBody(text string) string {
	offset := 0
	for offset < len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		if end < 0 {
			end = len(text) - offset
		}
		line := strings.TrimSuffix(text[offset:offset+end], "\r")
		if line == "" {
			return text
		}
		if !isHeaderLine(line, offset > 0) {
			return text[:offset] + "\n" + text[offset:]
		}
		offset += end + 1
	}
	return text
}

// isHeaderLine matches a field name of printable ASCII other than ':'
// followed by ':', or a continuation of the previous field.
func isHeaderLine(line string, continued bool) bool {
	if continued && (line[0] == ' ' || line[0] == '\t') {
		return true
	}
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return false
	}
	for i := 0; i < colon; i++ {
		if line[i] < '!' || line[i] > '~' {
			return false
		}
	}
	return true
}

// looksLikeEmail reports whether text parses as a message with both a From
// and a Subject header.
func looksLikeEmail(text string) bool {
	msg, err := parseEmail(text)
	if err != nil {
		return false
	}
	return strings.TrimSpace(msg.From) != "" && strings.TrimSpace(msg.Subject) != ""
}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// sender splits the From header into display name and address. An
// unparseable header is kept whole as the address.
func (m *parsedEmail) sender() Contact {
	addr, err := mail.ParseAddress(m.From)
	if err != nil {
		return Contact{Email: strings.TrimSpace(m.From)}
	}
	return Contact{Name: addr.Name, Email: addr.Address}
}

// date parses the Date header, falling back to now
func (m *parsedEmail) date(now time.Time) time.Time {
	if m.Date == "" {
		return now
	}
	t, err := mail.ParseDate(m.Date)
	if err != nil {
		return now
	}
	return t
}

// bodyText returns the first text/plain part of a multipart message, or the
// whole body of a single-part one, with its transfer encoding removed.
func (m *parsedEmail) bodyText() (string, error) {
	text, _, err := partText(textproto.MIMEHeader(m.header), m.body, 0)
	return text, err
}

// partText walks a MIME entity depth first. found reports whether a
// text/plain part was located inside a multipart entity.
func partText(header textproto.MIMEHeader, body io.Reader, depth int) (text string, found bool, err error) {
	mediaType := "text/plain"
	var params map[string]string
	if ct := header.Get("Content-Type"); ct != "" {
		mediaType, params, err = mime.ParseMediaType(ct)
		if err != nil {
			// Unparseable content types are treated as plain text
			mediaType, params, err = "text/plain", nil, nil
		}
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(transferDecoder(header.Get("Content-Transfer-Encoding"), body))
		if err != nil {
			return "", false, fmt.Errorf("decode body: %w", err)
		}
		return string(data), mediaType == "text/plain", nil
	}

	if depth >= maxPartDepth {
		return "", false, errors.New("multipart nesting too deep")
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", false, errors.New("multipart message without boundary")
	}

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read part: %w", err)
		}
		text, found, err := partText(part.Header, part, depth+1)
		if err != nil {
			return "", false, err
		}
		if found {
			return text, true, nil
		}
	}
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

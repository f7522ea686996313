package email

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// maxPartBytes caps every decoded body or part read. Alert emails run tens
// of kilobytes; anything near the cap is not an alert.
const maxPartBytes = 8 << 20

// messageParts splits a raw RFC822 message into its decoded text/plain and
// text/html bodies, plus the RFC2047-decoded subject. When header parsing
// fails the raw bytes are returned as plain text so the caller still has
// something to sniff.
func messageParts(raw []byte, fallbackSubject string) (subject, plain, htmlBody string) {
	subject = decodeHeader(fallbackSubject)
	if len(raw) == 0 {
		return subject, "", ""
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return subject, string(raw), ""
	}
	if s := strings.TrimSpace(msg.Header.Get("Subject")); s != "" {
		subject = decodeHeader(s)
	}

	body, _ := io.ReadAll(io.LimitReader(msg.Body, maxPartBytes))
	plain, htmlBody = textParts(msg.Header, body)
	if plain == "" && htmlBody == "" {
		plain = string(body)
	}
	return subject, plain, htmlBody
}

// textParts walks the MIME tree and keeps the largest text/plain and
// text/html leaves. multipart/alternative and nested multiparts both land
// here; alerts in particular ship alternative with the html part last.
func textParts(h mail.Header, body []byte) (plain, htmlPart string) {
	encoding := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return string(decodeTransfer(body, encoding)), ""
	}
	mediaType = strings.ToLower(mediaType)

	if !strings.HasPrefix(mediaType, "multipart/") {
		decoded := string(decodeTransfer(body, encoding))
		if strings.HasPrefix(mediaType, "text/html") {
			return "", decoded
		}
		return decoded, ""
	}

	boundary := params["boundary"]
	if boundary == "" {
		return string(decodeTransfer(body, encoding)), ""
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		partType = strings.ToLower(partType)
		partEncoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))

		b, _ := io.ReadAll(io.LimitReader(part, maxPartBytes))
		b = decodeTransfer(b, partEncoding)

		switch {
		case strings.HasPrefix(partType, "multipart/"):
			p, ht := textParts(mail.Header(part.Header), b)
			if len(p) > len(plain) {
				plain = p
			}
			if len(ht) > len(htmlPart) {
				htmlPart = ht
			}
		case strings.HasPrefix(partType, "text/plain"):
			if len(b) > len(plain) {
				plain = string(b)
			}
		case strings.HasPrefix(partType, "text/html"):
			if len(b) > len(htmlPart) {
				htmlPart = string(b)
			}
		}
	}
	return plain, htmlPart
}

func decodeTransfer(b []byte, encoding string) []byte {
	switch encoding {
	case "base64":
		dec := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxPartBytes))
		return out
	case "quoted-printable":
		dec := quotedprintable.NewReader(bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxPartBytes))
		return out
	default:
		return b
	}
}

func decodeHeader(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	out, err := new(mime.WordDecoder).DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

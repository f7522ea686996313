package email

import (
	"encoding/base64"
	"mime/quotedprintable"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qpEncode(t *testing.T, s string) string {
	t.Helper()
	var b strings.Builder
	w := quotedprintable.NewWriter(&b)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return b.String()
}

func TestMessagePartsMultipartAlternative(t *testing.T) {
	html := `<html><body><a href="https://www.linkedin.com/jobs/view/1/">Engineer at Acme</a></body></html>`
	raw := strings.Join([]string{
		"From: LinkedIn Job Alerts <jobalerts-noreply@linkedin.com>",
		"To: me@example.com",
		`Subject: =?UTF-8?Q?30=2B_new_jobs_for_=22golang=22?=`,
		"Date: Thu, 20 Aug 2026 09:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"View your jobs in a browser.",
		"--b1",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		qpEncode(t, html),
		"--b1--",
		"",
	}, "\r\n")

	subject, plain, htmlBody := messageParts([]byte(raw), "fallback")
	assert.Equal(t, `30+ new jobs for "golang"`, subject, "RFC2047 subject decoded")
	assert.Contains(t, plain, "View your jobs")
	assert.Equal(t, html, htmlBody, "quoted-printable html decoded byte for byte")
}

func TestMessagePartsSinglePartBase64(t *testing.T) {
	html := "<html><body><p>hello</p></body></html>"
	raw := strings.Join([]string{
		"From: a@example.com",
		"Subject: plain subject",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte(html)),
		"",
	}, "\r\n")

	subject, plain, htmlBody := messageParts([]byte(raw), "")
	assert.Equal(t, "plain subject", subject)
	assert.Empty(t, plain)
	assert.Equal(t, html, htmlBody)
}

func TestMessagePartsUnparseableFallsBack(t *testing.T) {
	subject, plain, htmlBody := messageParts([]byte("not an rfc822 message"), "kept subject")
	assert.Equal(t, "kept subject", subject)
	assert.Equal(t, "not an rfc822 message", plain)
	assert.Empty(t, htmlBody)

	subject, plain, htmlBody = messageParts(nil, "only subject")
	assert.Equal(t, "only subject", subject)
	assert.Empty(t, plain)
	assert.Empty(t, htmlBody)
}

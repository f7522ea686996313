// Package browser boots a real headless browser against boards that refuse
// plain HTTP clients (Workday, Eightfold) and hands back the session state a
// scraper needs to talk to their JSON APIs directly.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Session is the distilled result of a bootstrap: where the page settled,
// the cookies it set, and whatever CSRF token it exposed.
type Session struct {
	BaseURL   string
	Cookies   []Cookie
	CSRFToken string
	Domain    string
}

// CookieHeader renders the session cookies as one Cookie header value.
func (s *Session) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Cookie returns a named cookie value, empty when absent.
func (s *Session) Cookie(name string) string {
	for _, c := range s.Cookies {
		if strings.EqualFold(c.Name, name) {
			return c.Value
		}
	}
	return ""
}

type Client interface {
	Bootstrap(ctx context.Context, rawURL string) (*Session, error)
	Close()
}

// csrfCookieNames are checked in order; Workday uses the first.
var csrfCookieNames = []string{"CALYPSO_CSRF_TOKEN", "XSRF-TOKEN", "csrf-token"}

// ChromeClient drives one headless Chrome shared by all adapters. The
// allocator is created lazily on first Bootstrap so engines that never hit a
// browser platform never pay for Chrome.
type ChromeClient struct {
	log arbor.ILogger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func NewChrome(log arbor.ILogger) *ChromeClient {
	return &ChromeClient{log: log, timeout: 45 * time.Second}
}

func (c *ChromeClient) ensureAllocator() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocCtx != nil {
		return c.allocCtx
	}
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return c.allocCtx
}

// Bootstrap loads the page, waits for it to settle, and collects the final
// URL plus cookies. Every failure comes back as an error; callers decide
// whether that sinks the scrape or just degrades it.
func (c *ChromeClient) Bootstrap(ctx context.Context, rawURL string) (*Session, error) {
	browserCtx, cancel := chromedp.NewContext(c.ensureAllocator())
	defer cancel()

	runCtx, tcancel := context.WithTimeout(browserCtx, c.timeout)
	defer tcancel()

	// honor the caller's cancellation too
	go func() {
		select {
		case <-ctx.Done():
			tcancel()
		case <-runCtx.Done():
		}
	}()

	var finalURL string
	var cookies []*network.Cookie

	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", rawURL, err)
	}

	sess := &Session{BaseURL: finalURL}
	for _, ck := range cookies {
		sess.Cookies = append(sess.Cookies, Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain})
	}
	for _, name := range csrfCookieNames {
		if v := sess.Cookie(name); v != "" {
			sess.CSRFToken = v
			break
		}
	}
	sess.Domain = domainParam(finalURL)

	c.log.Debug().
		Str("url", rawURL).
		Str("final_url", finalURL).
		Int("cookies", len(sess.Cookies)).
		Bool("csrf", sess.CSRFToken != "").
		Msg("browser bootstrap complete")

	return sess, nil
}

func (c *ChromeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCtx = nil
		c.allocCancel = nil
	}
}

// domainParam pulls the ?domain= query Eightfold careers pages carry after
// their client-side redirect.
func domainParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("domain")
}

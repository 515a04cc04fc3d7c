// Package publish drives the external blog CMS through a headless browser:
// logging in, restoring a saved cookie session, and creating or revising
// posts from queue entries. The CMS is WordPress-shaped; all selectors live
// in this package so a different CMS only touches this file.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/session"
)

// DefaultTimeout bounds one full browser interaction (login or publish)
const DefaultTimeout = 90 * time.Second

// Config holds the CMS endpoint and credentials
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Verbose  bool
}

// Publisher performs the external publish action. It implements
// session.Authenticator so the session manager can drive logins.
type Publisher struct {
	cfg Config
}

// New creates a publisher for the configured CMS
func New(cfg Config) *Publisher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{cfg: cfg}
}

// sessionState is the serialized form of a browser session
type sessionState struct {
	Cookies []savedCookie `json:"cookies"`
}

type savedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

// Authenticate performs a full login and returns the exported cookie state
func (p *Publisher) Authenticate(ctx context.Context) ([]byte, error) {
	browserCtx, cancel := p.newBrowser(ctx)
	defer cancel()

	loginURL := p.cfg.BaseURL + "/wp-login.php"
	if p.cfg.Verbose {
		log.Printf("[PUBLISH] Logging in at %s", loginURL)
	}

	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`#user_login`),
		chromedp.SendKeys(`#user_login`, p.cfg.Username),
		chromedp.SendKeys(`#user_pass`, p.cfg.Password),
		chromedp.Click(`#wp-submit`),
		chromedp.WaitVisible(`#wpadminbar`),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("CMS login failed: %w", err)
	}

	state := sessionState{}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session state: %w", err)
	}
	return blob, nil
}

// Publish creates or revises a post for the queue entry under the given
// session state. It returns the external post id when the CMS exposes one.
// A login redirect from the editor means the session is stale; that surfaces
// as session.ErrUnauthenticated so the session manager can re-authenticate.
func (p *Publisher) Publish(ctx context.Context, state []byte, entry *db.QueueEntry) (string, error) {
	var saved sessionState
	if err := json.Unmarshal(state, &saved); err != nil {
		return "", fmt.Errorf("failed to parse session state: %w", err)
	}

	browserCtx, cancel := p.newBrowser(ctx)
	defer cancel()

	editorURL := p.cfg.BaseURL + "/wp-admin/post-new.php"
	if entry.PostType == db.PostTypeRevision && entry.PriorPostID != nil {
		editorURL = fmt.Sprintf("%s/wp-admin/post.php?post=%s&action=edit", p.cfg.BaseURL, *entry.PriorPostID)
	}

	var currentURL string
	err := chromedp.Run(browserCtx,
		p.restoreCookies(saved),
		chromedp.Navigate(editorURL),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", fmt.Errorf("failed to open editor: %w", err)
	}

	// The precondition check: an editor URL that bounced to the login page
	// means the restored session is invalid.
	if strings.Contains(currentURL, "wp-login.php") {
		return "", fmt.Errorf("editor redirected to login: %w", session.ErrUnauthenticated)
	}

	if p.cfg.Verbose {
		log.Printf("[PUBLISH] Editing %q (%s)", entry.Title, entry.PostType)
	}

	err = chromedp.Run(browserCtx,
		chromedp.WaitVisible(`#title`),
		chromedp.Clear(`#title`),
		chromedp.SendKeys(`#title`, entry.Title),
		chromedp.Click(`#content-html`),
		chromedp.Clear(`#content`),
		chromedp.SendKeys(`#content`, entry.Body),
		chromedp.SetValue(`#new-tag-post_tag`, strings.Join(entry.Tags, ", ")),
		chromedp.Click(`#publish`),
		chromedp.WaitVisible(`#message`),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", fmt.Errorf("publish action failed: %w", err)
	}

	return extractPostID(currentURL), nil
}

func (p *Publisher) newBrowser(ctx context.Context) (context.Context, context.CancelFunc) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, p.cfg.Timeout)

	return browserCtx, func() {
		cancelTimeout()
		cancelCtx()
		cancelAlloc()
	}
}

func (p *Publisher) restoreCookies(saved sessionState) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(saved.Cookies))
		for _, c := range saved.Cookies {
			params = append(params, &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		return storage.SetCookies(params).Do(ctx)
	}
}

// extractPostID pulls the post id out of the editor URL after a save
// (post.php?post=123&action=edit). Empty when the CMS did not redirect.
func extractPostID(editorURL string) string {
	parsed, err := url.Parse(editorURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("post")
}

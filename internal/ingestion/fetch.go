// Package ingestion turns job posting URLs and resume files into the plain
// text a job intake needs.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/logger"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; EvalAgent/1.0)"

// maxPageBytes bounds how much of a posting page is read
const maxPageBytes = 8 << 20

var (
	// ErrInvalidURL is returned when URL is malformed
	ErrInvalidURL = errors.New("invalid URL")
	// ErrHTTPRequestFailed is returned when HTTP request fails
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
	// ErrContentExtractionFailed is returned when content extraction fails
	ErrContentExtractionFailed = errors.New("content extraction failed")
)

// FetchError represents an error during URL fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrHTTPRequestFailed}
	}
	return []error{ErrHTTPRequestFailed, e.Cause}
}

// Posting is a fetched job posting
type Posting struct {
	URL       string    `json:"url"`
	Platform  Platform  `json:"platform"`
	Title     string    `json:"title,omitempty"`
	Company   string    `json:"company,omitempty"`
	Text      string    `json:"text"`
	Hash      string    `json:"hash"`
	FetchedAt time.Time `json:"fetched_at"`
	// Rendered is true when the text came from the headless browser
	Rendered bool `json:"rendered"`
}

// Renderer returns the HTML of a page after client-side rendering
type Renderer func(ctx context.Context, url string) (string, error)

// Fetcher retrieves job postings over HTTP, optionally falling back to a
// headless browser for pages that render client-side.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	// Render is used when browser fallback is requested; defaults to chromedp
	Render Renderer
	Log    *zap.Logger
}

// NewFetcher creates a fetcher with default settings
func NewFetcher(log *zap.Logger) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: DefaultTimeout},
		UserAgent: DefaultUserAgent,
		Render:    RenderWithBrowser,
		Log:       logger.OrNop(log),
	}
}

// FetchPosting fetches a job posting with a default fetcher
func FetchPosting(ctx context.Context, urlStr string, useBrowser bool) (*Posting, error) {
	return NewFetcher(nil).FetchPosting(ctx, urlStr, useBrowser)
}

// FetchPosting fetches the page at urlStr and extracts the posting text using
// platform-specific selectors. When useBrowser is set and the static page
// yields too little text, the page is rendered in a headless browser instead.
func (f *Fetcher) FetchPosting(ctx context.Context, urlStr string, useBrowser bool) (*Posting, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, urlStr)
	}
	log := logger.OrNop(f.Log).With(zap.String("url", urlStr))

	platform := DetectPlatform(urlStr)
	html, err := f.get(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	page, err := extractPage(html, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentExtractionFailed, err)
	}
	log.Debug("fetched posting",
		zap.String("platform", string(platform)),
		zap.Int("html_bytes", len(html)),
		zap.Int("text_chars", len(page.text)),
	)

	rendered := false
	if useBrowser && ShouldUseBrowser(page.text) && f.Render != nil {
		log.Info("posting text too short, rendering in browser", zap.Int("text_chars", len(page.text)))
		browserHTML, err := f.Render(ctx, urlStr)
		switch {
		case err != nil:
			log.Warn("browser rendering failed, using static content", zap.Error(err))
		default:
			if rp, err := extractPage(browserHTML, platform); err == nil && len(rp.text) > len(page.text) {
				page = rp
				rendered = true
			}
		}
	}

	text := CleanText(page.text)
	if text == "" {
		return nil, fmt.Errorf("%w: no text found at %s", ErrContentExtractionFailed, urlStr)
	}

	return &Posting{
		URL:       urlStr,
		Platform:  platform,
		Title:     page.title,
		Company:   page.company,
		Text:      text,
		Hash:      computeHash(text),
		FetchedAt: time.Now().UTC(),
		Rendered:  rendered,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", &FetchError{URL: urlStr, Cause: err}
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: urlStr, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: urlStr, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", &FetchError{URL: urlStr, Cause: err}
	}
	return string(body), nil
}

// computeHash computes SHA256 hash of content and returns hex string
func computeHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

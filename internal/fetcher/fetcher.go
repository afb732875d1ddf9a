package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultUserAgent = "synlabel/1.0 (synergy labeler)"
	maxBodySize      = 10 * 1024 * 1024
	maxPageSize      = 2 * 1024 * 1024
)

// ErrTooLarge is returned for bodies over the size limit. Nothing partial is returned.
var ErrTooLarge = errors.New("response body too large")

// Fetcher downloads card images.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher. Zero timeout means 30s; empty user agent uses the default.
func New(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch retrieves rawURL and returns the body and its content type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.get(ctx, rawURL, maxBodySize)
}

// ImageFromPage fetches an HTML page and follows its og:image link.
func (f *Fetcher) ImageFromPage(ctx context.Context, pageURL string) ([]byte, string, error) {
	page, _, err := f.get(ctx, pageURL, maxPageSize)
	if err != nil {
		return nil, "", err
	}

	imageURL := extractOGImage(string(page))
	if imageURL == "" {
		return nil, "", fmt.Errorf("no og:image on %s", pageURL)
	}

	// og:image may be relative to the page
	base, err := url.Parse(pageURL)
	if err == nil {
		if ref, err := url.Parse(imageURL); err == nil {
			imageURL = base.ResolveReference(ref).String()
		}
	}
	return f.Fetch(ctx, imageURL)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

// extractOGImage returns the content of the first og:image meta tag.
func extractOGImage(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var prop, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "property", "name":
					prop = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			if prop == "og:image" && content != "" {
				found = strings.TrimSpace(content)
				return
			}
		}
		// Scripts and styles cannot hold meta tags
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return found
}

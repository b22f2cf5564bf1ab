package sim

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// maxRedirects is the number of redirects a fetch follows before failing.
const maxRedirects = 10

// Resource is a document served by a Web.
type Resource struct {
	// ContentType defaults to text/html.
	ContentType string
	Body        string
	// Status defaults to 200.
	Status int
	// Location makes the resource a redirect.
	Location string
}

// response is a fetched resource.
type response struct {
	url         string
	status      int
	contentType string
	body        string
}

func (r *response) isHTML() bool {
	mt, _, err := mime.ParseMediaType(r.contentType)
	if err != nil {
		return strings.Contains(r.contentType, "html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Web is the set of documents an engine can load. Resources added with Add
// are served first; other http and https URLs are fetched with the HTTP
// client, when there is one. data: URLs are always served.
type Web struct {
	mu        sync.RWMutex
	resources map[string]Resource
	client    *http.Client
}

// NewWeb returns an empty Web that does not reach the network.
func NewWeb() *Web {
	return &Web{resources: make(map[string]Resource)}
}

// WithHTTPClient makes w fetch unknown http and https URLs with c.
func (w *Web) WithHTTPClient(c *http.Client) *Web {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.client = c
	return w
}

// Add serves r at rawURL.
func (w *Web) Add(rawURL string, r Resource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resources[normalizeURL(rawURL)] = r
}

// AddHTML serves an HTML document at rawURL.
func (w *Web) AddHTML(rawURL, body string) {
	w.Add(rawURL, Resource{Body: body})
}

// AddRedirect redirects from to to.
func (w *Web) AddRedirect(from, to string) {
	w.Add(from, Resource{Status: http.StatusFound, Location: to})
}

// fetch loads rawURL, following redirects.
func (w *Web) fetch(ctx context.Context, rawURL, userAgent string) (*response, error) {
	current := rawURL
	for i := 0; i <= maxRedirects; i++ {
		if strings.HasPrefix(current, "data:") {
			return parseDataURL(current)
		}
		if current == "about:blank" {
			return &response{url: current, status: http.StatusOK, contentType: "text/html"}, nil
		}

		r, err := w.get(ctx, current, userAgent)
		if err != nil {
			return nil, err
		}
		if r.Location == "" {
			return &response{
				url:         current,
				status:      orDefault(r.Status, http.StatusOK),
				contentType: orDefault(r.ContentType, "text/html; charset=utf-8"),
				body:        r.Body,
			}, nil
		}

		next, err := resolveURL(current, r.Location)
		if err != nil {
			return nil, fmt.Errorf("net::ERR_INVALID_REDIRECT: %w", err)
		}
		current = next
	}
	return nil, fmt.Errorf("net::ERR_TOO_MANY_REDIRECTS at %s", rawURL)
}

// get returns the resource at rawURL without following redirects.
func (w *Web) get(ctx context.Context, rawURL, userAgent string) (Resource, error) {
	w.mu.RLock()
	r, ok := w.resources[normalizeURL(rawURL)]
	client := w.client
	w.mu.RUnlock()
	if ok {
		return r, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Resource{}, fmt.Errorf("net::ERR_INVALID_URL: %w", err)
	}
	if client == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Resource{}, fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Resource{}, fmt.Errorf("net::ERR_INVALID_URL: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	// Redirects are followed by fetch so each hop is resolved the same way.
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := c.Do(req)
	if err != nil {
		return Resource{}, fmt.Errorf("net::ERR_CONNECTION_FAILED: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Resource{}, fmt.Errorf("net::ERR_FAILED reading %s: %w", rawURL, err)
	}
	r = Resource{
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
		Status:      resp.StatusCode,
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		r.Location = resp.Header.Get("Location")
	}
	return r, nil
}

// parseDataURL decodes a data: URL as defined by RFC 2397.
func parseDataURL(rawURL string) (*response, error) {
	meta, data, ok := strings.Cut(strings.TrimPrefix(rawURL, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("net::ERR_INVALID_URL: malformed data URL")
	}

	contentType, isBase64 := meta, false
	if s, found := strings.CutSuffix(meta, ";base64"); found {
		contentType, isBase64 = s, true
	}
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}

	var body string
	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("net::ERR_INVALID_URL: %w", err)
		}
		body = string(b)
	} else {
		s, err := url.PathUnescape(data)
		if err != nil {
			return nil, fmt.Errorf("net::ERR_INVALID_URL: %w", err)
		}
		body = s
	}

	return &response{url: rawURL, status: http.StatusOK, contentType: contentType, body: body}, nil
}

// resolveURL resolves ref against base.
func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// normalizeURL makes "https://a.test" and "https://a.test/" the same key.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Opaque != "" || u.Host == "" {
		return rawURL
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u.String()
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

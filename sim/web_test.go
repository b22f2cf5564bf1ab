package sim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mccutchen/go-httpbin/httpbin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebFetch(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test", "<p>root</p>")
	web.Add("https://site.test/data.txt", Resource{ContentType: "text/plain", Body: "plain"})
	web.Add("https://site.test/missing", Resource{Status: http.StatusNotFound, Body: "gone"})
	web.AddRedirect("https://site.test/r1", "/r2")
	web.AddRedirect("https://site.test/r2", "https://site.test/#top")

	tests := []struct {
		name     string
		url      string
		wantURL  string
		wantBody string
		status   int
		html     bool
		wantErr  string
	}{
		{name: "html", url: "https://site.test/", wantURL: "https://site.test/", wantBody: "<p>root</p>", status: 200, html: true},
		{name: "text", url: "https://site.test/data.txt", wantURL: "https://site.test/data.txt", wantBody: "plain", status: 200},
		{name: "status", url: "https://site.test/missing", wantURL: "https://site.test/missing", wantBody: "gone", status: 404, html: true},
		{name: "redirects", url: "https://site.test/r1", wantURL: "https://site.test/#top", wantBody: "<p>root</p>", status: 200, html: true},
		{name: "data_base64", url: "data:text/html;base64,PGI+aGk8L2I+", wantURL: "data:text/html;base64,PGI+aGk8L2I+", wantBody: "<b>hi</b>", status: 200, html: true},
		{name: "data_escaped", url: "data:,a%20b", wantURL: "data:,a%20b", wantBody: "a b", status: 200},
		{name: "blank", url: "about:blank", wantURL: "about:blank", status: 200, html: true},
		{name: "unknown", url: "https://nowhere.test/", wantErr: "net::ERR_NAME_NOT_RESOLVED"},
		{name: "bad_data", url: "data:text/plain", wantErr: "net::ERR_INVALID_URL"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, err := web.fetch(context.Background(), tc.url, "")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, resp.url)
			assert.Equal(t, tc.wantBody, resp.body)
			assert.Equal(t, tc.status, resp.status)
			assert.Equal(t, tc.html, resp.isHTML())
		})
	}
}

func TestWebFetchHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(httpbin.New().Handler())
	t.Cleanup(srv.Close)

	web := NewWeb().WithHTTPClient(srv.Client())
	ctx := context.Background()

	resp, err := web.fetch(ctx, srv.URL+"/html", "")
	require.NoError(t, err)
	assert.True(t, resp.isHTML())
	assert.Contains(t, resp.body, "Herman Melville")

	resp, err = web.fetch(ctx, srv.URL+"/redirect/2", "")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/get", resp.url)

	resp, err = web.fetch(ctx, srv.URL+"/user-agent", "sim-test/1.0")
	require.NoError(t, err)
	assert.Contains(t, resp.body, "sim-test/1.0")

	resp, err = web.fetch(ctx, srv.URL+"/status/418", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.status)

	// resources added to the web win over the network
	web.AddHTML(srv.URL+"/html", "<p>local</p>")
	resp, err = web.fetch(ctx, srv.URL+"/html", "")
	require.NoError(t, err)
	assert.Equal(t, "<p>local</p>", resp.body)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"https://a.test", "https://a.test/"},
		{"https://a.test/p?q=1#f", "https://a.test/p?q=1"},
		{"about:blank", "about:blank"},
		{"data:,x", "data:,x"},
		{"relative/path", "relative/path"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeURL(tc.in), tc.in)
	}
	assert.True(t, strings.HasPrefix(DefaultUserAgent, "Mozilla/5.0"))
}

package utils

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackBase = "https://track.example.com"

func TestTrackingPixelURL(t *testing.T) {
	got := TrackingPixelURL(trackBase, "ev-123")
	assert.Equal(t, trackBase+"/api/email-events/track-open?id=ev-123", got)
}

func TestClickTrackURLEscapesTarget(t *testing.T) {
	got := ClickTrackURL(trackBase, "ev-123", "https://dest.test/page?a=1&b=2")
	parsed, err := url.Parse(got)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "ev-123", q.Get("id"))
	assert.Equal(t, "https://dest.test/page?a=1&b=2", q.Get("url"))
}

func TestInjectTrackingAppendsPixel(t *testing.T) {
	html := "<div>Hello</div>"
	got := InjectTracking(html, trackBase, "ev-1")
	assert.True(t, strings.HasPrefix(got, html))
	assert.Contains(t, got, `<img src="`+trackBase+`/api/email-events/track-open?id=ev-1"`)
	assert.Contains(t, got, `style="display:none"`)
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	html := `<p><a href="https://one.test/a">one</a> and <a href="https://two.test/b">two</a></p>`
	got := InjectTracking(html, trackBase, "ev-7")

	assert.NotContains(t, got, `href="https://one.test/a"`)
	assert.NotContains(t, got, `href="https://two.test/b"`)
	assert.Equal(t, 2, strings.Count(got, "/api/email-events/track-click?id=ev-7"))
	// Original targets survive as escaped url parameters.
	assert.Contains(t, got, url.QueryEscape("https://one.test/a"))
	assert.Contains(t, got, url.QueryEscape("https://two.test/b"))
}

func TestInjectTrackingNoLinks(t *testing.T) {
	got := InjectTracking("<div>plain</div>", trackBase, "ev-9")
	assert.NotContains(t, got, "track-click")
	assert.Contains(t, got, "track-open?id=ev-9")
}

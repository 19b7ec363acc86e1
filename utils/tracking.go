package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// TrackingPixelURL builds the open-tracking pixel URL for a sent event.
func TrackingPixelURL(baseURL, eventID string) string {
	return fmt.Sprintf("%s/api/email-events/track-open?id=%s", baseURL, url.QueryEscape(eventID))
}

// ClickTrackURL builds a redirecting click-tracking URL for a link inside a
// sent email.
func ClickTrackURL(baseURL, eventID, originalURL string) string {
	return fmt.Sprintf("%s/api/email-events/track-click?id=%s&url=%s",
		baseURL, url.QueryEscape(eventID), url.QueryEscape(originalURL))
}

// InjectTracking rewrites anchor hrefs through the click endpoint and appends
// the open pixel. The URL is keyed by the sent event's id.
func InjectTracking(htmlContent, baseURL, eventID string) string {
	modified := injectClickTracking(htmlContent, baseURL, eventID)
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none" />`,
		TrackingPixelURL(baseURL, eventID))
	return modified + pixel
}

func injectClickTracking(html, baseURL, eventID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		trackedURL := ClickTrackURL(baseURL, eventID, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}

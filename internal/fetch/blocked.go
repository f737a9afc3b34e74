package fetch

import (
	"bytes"
	"net/http"

	"github.com/user/imo-scraper/internal/entity"
)

// blockMarkers are body fragments served by bot walls instead of content.
var blockMarkers = [][]byte{
	[]byte("The request could not be satisfied"), // CloudFront
	[]byte("geo.captcha-delivery.com"),           // DataDome
	[]byte("Pardon Our Interruption"),            // Imperva
	[]byte("px-captcha"),                         // PerimeterX
}

// maxMarkerScan bounds how much of a body is searched; walls are short pages.
const maxMarkerScan = 64 << 10

func BlockedStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests
}

// BlockedBody reports whether body looks like an anti-bot interstitial.
func BlockedBody(body []byte) bool {
	if len(body) > maxMarkerScan {
		body = body[:maxMarkerScan]
	}
	for _, m := range blockMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

// Classify turns a completed response into an error when it is not usable
// content: blocked walls and non-2xx statuses.
func Classify(resp *entity.FetchResponse) error {
	switch {
	case BlockedStatus(resp.StatusCode):
		return &Error{Kind: KindBlocked, StatusCode: resp.StatusCode, URL: resp.FinalURL}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, URL: resp.FinalURL}
	case BlockedBody(resp.Body):
		return &Error{Kind: KindBlocked, StatusCode: resp.StatusCode, URL: resp.FinalURL}
	}
	return nil
}

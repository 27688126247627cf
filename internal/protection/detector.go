// Package protection detects bot protection and anti-scraping measures in
// fetched pages.
package protection

import (
	"net/http"
	"regexp"
	"strings"
)

// SignalType identifies the type of protection detected.
type SignalType string

const (
	SignalNone         SignalType = ""
	SignalCloudflare   SignalType = "cloudflare"
	SignalCaptcha      SignalType = "captcha"
	SignalAccessDenied SignalType = "access_denied"
	SignalRateLimited  SignalType = "rate_limited"
	SignalEmptyContent SignalType = "empty_content"
)

// DetectionResult describes what, if anything, got in the way of a fetch.
type DetectionResult struct {
	// Detected is true if any protection signal was found.
	Detected bool

	// Signal identifies the type of protection detected.
	Signal SignalType

	// Confidence is a score from 0-100 indicating detection confidence.
	Confidence int

	// Description provides a human-readable explanation.
	Description string
}

// Detector analyzes fetched responses for bot protection signals. Catalog
// sources often serve challenge pages with a 200 status, so status-code
// checks alone are not enough.
type Detector struct {
	// MinContentLength is the minimum expected content length for a real
	// page. Responses shorter than this may indicate a challenge page.
	MinContentLength int
}

// NewDetector creates a detector with default settings.
func NewDetector() *Detector {
	return &Detector{
		MinContentLength: 500,
	}
}

// Detect analyzes a response for protection signals.
func (d *Detector) Detect(statusCode int, headers http.Header, body []byte) DetectionResult {
	if result := d.checkStatusCode(statusCode); result.Detected {
		return result
	}
	if result := d.checkHeaders(headers); result.Detected {
		return result
	}
	return d.checkBodyContent(body)
}

func (d *Detector) checkStatusCode(statusCode int) DetectionResult {
	switch statusCode {
	case http.StatusForbidden:
		return DetectionResult{
			Detected:    true,
			Signal:      SignalAccessDenied,
			Confidence:  90,
			Description: "access denied (HTTP 403), site may be blocking automated requests",
		}
	case http.StatusServiceUnavailable:
		return DetectionResult{
			Detected:    true,
			Signal:      SignalCloudflare,
			Confidence:  70,
			Description: "service unavailable (HTTP 503), may indicate a Cloudflare challenge",
		}
	case http.StatusTooManyRequests:
		return DetectionResult{
			Detected:    true,
			Signal:      SignalRateLimited,
			Confidence:  95,
			Description: "rate limited (HTTP 429)",
		}
	}
	return DetectionResult{Detected: false}
}

func (d *Detector) checkHeaders(headers http.Header) DetectionResult {
	if headers == nil {
		return DetectionResult{Detected: false}
	}

	// A cf-ray header alone just means Cloudflare fronts the site; only the
	// mitigation header marks an actual challenge.
	if headers.Get("cf-ray") != "" && headers.Get("cf-mitigated") == "challenge" {
		return DetectionResult{
			Detected:    true,
			Signal:      SignalCloudflare,
			Confidence:  95,
			Description: "Cloudflare challenge detected",
		}
	}

	return DetectionResult{Detected: false}
}

var (
	cloudflarePatterns = []string{
		"cf-browser-verification",
		"challenge-platform",
		"cf_chl_opt",
		"_cf_chl",
		"checking your browser",
		"just a moment...",
		"attention required! | cloudflare",
	}

	captchaPatterns = []string{
		"g-recaptcha",
		"grecaptcha",
		"h-captcha",
		"hcaptcha",
		"data-sitekey",
		"captcha-container",
		"cf-turnstile",
	}

	accessDeniedPatterns = []string{
		"access denied",
		"access to this page has been denied",
		"you don't have permission",
		"request blocked",
		"bot detected",
		"automated access",
		"please verify you are human",
		"are you a robot",
	}

	contentIndicatorRegex = regexp.MustCompile(`<(article|main|section|div[^>]*class[^>]*content)[^>]*>`)
)

func (d *Detector) checkBodyContent(body []byte) DetectionResult {
	if len(body) == 0 {
		return DetectionResult{
			Detected:    true,
			Signal:      SignalEmptyContent,
			Confidence:  80,
			Description: "empty response body, may indicate a blocked request",
		}
	}

	content := string(body)
	contentLower := strings.ToLower(content)

	for _, pattern := range cloudflarePatterns {
		if strings.Contains(contentLower, pattern) {
			return DetectionResult{
				Detected:    true,
				Signal:      SignalCloudflare,
				Confidence:  90,
				Description: "Cloudflare challenge page detected",
			}
		}
	}

	for _, pattern := range captchaPatterns {
		if strings.Contains(contentLower, pattern) {
			return DetectionResult{
				Detected:    true,
				Signal:      SignalCaptcha,
				Confidence:  95,
				Description: "captcha challenge detected",
			}
		}
	}

	for _, pattern := range accessDeniedPatterns {
		if strings.Contains(contentLower, pattern) {
			return DetectionResult{
				Detected:    true,
				Signal:      SignalAccessDenied,
				Confidence:  85,
				Description: "access denied message detected",
			}
		}
	}

	if len(body) < d.MinContentLength && !contentIndicatorRegex.MatchString(content) {
		return DetectionResult{
			Detected:    true,
			Signal:      SignalEmptyContent,
			Confidence:  60,
			Description: "response too small, may be a challenge or error page",
		}
	}

	return DetectionResult{Detected: false}
}

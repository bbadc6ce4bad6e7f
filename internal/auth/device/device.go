// Package device turns request user agents into human-readable labels for
// audit events ("Chrome on macOS").
package device

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	"backoffice/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns "<browser> on <platform>" or "Unknown Device".
func ParseUserAgent(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return unknownDevice
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + platform)
}

// Label reads the User-Agent carried by ctx. Contexts without one (CLI,
// background jobs) yield an empty label so audit lines stay clean.
func Label(ctx context.Context) string {
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		return ""
	}
	return ParseUserAgent(ua)
}

package http

import (
	"strings"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

// ParseUserAgent is a small substring-based classifier. It covers the
// browsers and platforms seen in practice; anything else is "unknown".
func ParseUserAgent(userAgent string) domain.DeviceInfo {
	info := domain.DeviceInfo{
		UserAgent: userAgent,
		Browser:   "unknown",
		OS:        "unknown",
		Device:    "desktop",
	}
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		info.OS = "iOS"
	case strings.Contains(ua, "mac os"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") {
		info.Device = "mobile"
	} else if strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") {
		info.Device = "tablet"
	}
	return info
}

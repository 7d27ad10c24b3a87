package sso

import (
	"net"
	"net/http"
	"strings"
)

type DeviceInfo struct {
	Type           DeviceType `json:"type"`
	Name           string     `json:"name"`
	OS             string     `json:"os,omitempty"`
	Browser        string     `json:"browser,omitempty"`
	BrowserVersion string     `json:"browser_version,omitempty"`
}

type browserMatch struct {
	name    string
	markers []string
	version string
	reject  []string
}

// Ordered: Edge and Opera UAs also carry chrome/ and safari/.
var browsers = []browserMatch{
	{name: "Edge", markers: []string{"edg/"}, version: "edg/"},
	{name: "Opera", markers: []string{"opr/", "opera/"}},
	{name: "Firefox", markers: []string{"firefox/"}, version: "firefox/"},
	{name: "Chrome", markers: []string{"chrome/"}, version: "chrome/"},
	{name: "Safari", markers: []string{"safari/"}, version: "version/", reject: []string{"chrome"}},
}

// ParseUserAgent classifies a User-Agent header by keyword match.
func ParseUserAgent(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{Type: DeviceUnknown, Name: "Unknown Device"}
	}
	ua := strings.ToLower(userAgent)

	browser, version := "Unknown", ""
	for _, b := range browsers {
		if !containsAny(ua, b.markers) || containsAny(ua, b.reject) {
			continue
		}
		browser = b.name
		switch {
		case b.version != "":
			version = majorVersion(ua, b.version)
		case strings.Contains(ua, "opr/"):
			version = majorVersion(ua, "opr/")
		default:
			version = majorVersion(ua, "opera/")
		}
		break
	}

	os := "Unknown"
	switch {
	case strings.Contains(ua, "android"):
		os = "Android"
	case containsAny(ua, []string{"iphone", "ipad", "ipod"}):
		os = "iOS"
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac os x"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	}

	device := DeviceDesktop
	switch {
	case containsAny(ua, []string{"ipad", "tablet"}):
		device = DeviceTablet
	case containsAny(ua, []string{"mobile", "android", "iphone"}):
		device = DeviceMobile
	}

	return DeviceInfo{
		Type:           device,
		Name:           browser + " on " + os,
		OS:             os,
		Browser:        browser,
		BrowserVersion: version,
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func majorVersion(ua, prefix string) string {
	idx := strings.Index(ua, prefix)
	if idx == -1 {
		return ""
	}
	rest := ua[idx+len(prefix):]
	if end := strings.IndexAny(rest, " ;)"); end != -1 {
		rest = rest[:end]
	}
	major, _, _ := strings.Cut(rest, ".")
	return major
}

// ClientIP returns the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

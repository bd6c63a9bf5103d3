package service

import "strings"

// DeviceInfo is the request metadata captured at login for the session audit
// trail.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
}

type deviceFingerprint struct {
	DeviceType string
	Browser    string
	OS         string
}

// fingerprint derives a coarse device classification from the User-Agent.
// Best-effort only; sessions are an audit trail, not an authorization input.
func fingerprint(userAgent string) deviceFingerprint {
	ua := strings.ToLower(userAgent)

	fp := deviceFingerprint{DeviceType: "desktop", Browser: "unknown", OS: "unknown"}

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		fp.DeviceType = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		fp.DeviceType = "mobile"
	case strings.Contains(ua, "curl") || strings.Contains(ua, "wget") || strings.Contains(ua, "python") || strings.Contains(ua, "go-http-client"):
		fp.DeviceType = "cli"
	}

	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		fp.Browser = "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		fp.Browser = "opera"
	case strings.Contains(ua, "chrome"):
		fp.Browser = "chrome"
	case strings.Contains(ua, "firefox"):
		fp.Browser = "firefox"
	case strings.Contains(ua, "safari"):
		fp.Browser = "safari"
	}

	switch {
	case strings.Contains(ua, "windows"):
		fp.OS = "windows"
	case strings.Contains(ua, "android"):
		fp.OS = "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		fp.OS = "ios"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		fp.OS = "macos"
	case strings.Contains(ua, "linux"):
		fp.OS = "linux"
	}

	return fp
}

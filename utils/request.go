package utils

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP address from HTTP request
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if isValidIP(ip) {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" && isValidIP(xri) {
		return xri
	}

	// Cloudflare
	if cfip := r.Header.Get("CF-Connecting-IP"); cfip != "" && isValidIP(cfip) {
		return cfip
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// GetUserAgent extracts user agent from request
func GetUserAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

// ExtractTokenFromHeader returns the token of a "Bearer <token>" header.
func ExtractTokenFromHeader(authHeader string) string {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// BrowserFamily maps a user agent to a browser name.
func BrowserFamily(ua string) string {
	l := strings.ToLower(ua)
	switch {
	case strings.Contains(l, "edg/"):
		return "Edge"
	case strings.Contains(l, "opr/"):
		return "Opera"
	case strings.Contains(l, "chrome/"):
		return "Chrome"
	case strings.Contains(l, "firefox/"):
		return "Firefox"
	case strings.Contains(l, "safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}

// Platform maps a user agent to an operating system name.
func Platform(ua string) string {
	l := strings.ToLower(ua)
	switch {
	case strings.Contains(l, "iphone"), strings.Contains(l, "ipad"):
		return "iOS"
	case strings.Contains(l, "android"):
		return "Android"
	case strings.Contains(l, "windows"):
		return "Windows"
	case strings.Contains(l, "mac os"):
		return "macOS"
	case strings.Contains(l, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

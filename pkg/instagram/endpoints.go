package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// LoginPath is the login form
	LoginPath = "/accounts/login/"

	// InboxPath is the direct message inbox
	InboxPath = "/direct/inbox/"

	// ThreadPathPrefix prefixes a single conversation
	ThreadPathPrefix = "/direct/t/"
)

// cdnHosts are the domains media files are served from
var cdnHosts = []string{"cdninstagram.com", "fbcdn.net"}

func join(base, path string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = BaseURL
	}
	return base + path
}

// LoginURL returns the login form address under base
func LoginURL(base string) string {
	return join(base, LoginPath)
}

// InboxURL returns the inbox address under base
func InboxURL(base string) string {
	return join(base, InboxPath)
}

// ThreadURL returns the address of the conversation with threadID
func ThreadURL(base, threadID string) string {
	return join(base, fmt.Sprintf("%s%s/", ThreadPathPrefix, url.PathEscape(threadID)))
}

// IsLoginPage reports whether location is the login form
func IsLoginPage(location string) bool {
	return strings.Contains(location, LoginPath)
}

// IsDirectPage reports whether location is inside the direct messages area
func IsDirectPage(location string) bool {
	return strings.Contains(location, "/direct/")
}

// IsCDNURL reports whether raw points at an Instagram media host
func IsCDNURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range cdnHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsFetchable reports whether raw is an absolute http(s) address
func IsFetchable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return strings.TrimRight(username, "/ ")
}

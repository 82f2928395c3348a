package resolver

import (
	"regexp"
	"strings"
)

var ipv4Regex = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// ExtractSubdomain derives a tenant subdomain candidate from a Host
// header value. It returns "" for localhost, IPv4 literals, and
// hostnames with fewer than three dot-separated labels, since none of
// those can carry a tenant subdomain.
func ExtractSubdomain(host string) string {
	hostname, _, found := strings.Cut(host, ":")
	if found && hostname == "" {
		return ""
	}

	if hostname == "localhost" || ipv4Regex.MatchString(hostname) {
		return ""
	}

	parts := strings.Split(hostname, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}

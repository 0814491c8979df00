// Package netguard vets outbound URLs and IP addresses to prevent
// server-side request forgery, and provides an HTTP GET that re-vets every
// redirect hop.
package netguard

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Error taxonomy for fetch operations.
var (
	ErrInvalidURL  = errors.New("invalid_url")
	ErrSSRFBlocked = errors.New("ssrf_blocked")
	ErrRedirect    = errors.New("redirect_error")
	ErrNetwork     = errors.New("network_error")
)

// blockedHostnames are always rejected.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"169.254.169.254":          true,
}

// dangerousSuffixes indicate internal/local resources.
var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// NormalizeHostname trims whitespace, lowercases, strips a trailing dot, and
// unwraps IPv6 brackets.
func NormalizeHostname(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	normalized = strings.TrimSuffix(normalized, ".")
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

// IsBlockedHostname checks the explicit blocklist and dangerous suffixes.
func IsBlockedHostname(hostname string) bool {
	normalized := NormalizeHostname(hostname)
	if normalized == "" {
		return false
	}
	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// decodeIPv4Literal decodes the non-standard IPv4 literal forms accepted by
// inet_aton: 1, 2, 3, or 4 parts, each in decimal, octal (leading 0), or hex
// (0x prefix). Returns false if the string is not an IPv4 literal.
func decodeIPv4Literal(s string) ([4]byte, bool) {
	var out [4]byte
	if s == "" {
		return out, false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return out, false
	}

	values := make([]uint64, len(parts))
	for i, part := range parts {
		v, ok := parseIPv4Part(part)
		if !ok {
			return out, false
		}
		values[i] = v
	}

	switch len(values) {
	case 1:
		// Entire 32-bit value.
		if values[0] > 0xffffffff {
			return out, false
		}
		v := values[0]
		return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}, true
	case 2:
		// a.b with b covering the low 24 bits.
		if values[0] > 0xff || values[1] > 0xffffff {
			return out, false
		}
		v := values[1]
		return [4]byte{byte(values[0]), byte(v >> 16), byte(v >> 8), byte(v)}, true
	case 3:
		// a.b.c with c covering the low 16 bits.
		if values[0] > 0xff || values[1] > 0xff || values[2] > 0xffff {
			return out, false
		}
		v := values[2]
		return [4]byte{byte(values[0]), byte(values[1]), byte(v >> 8), byte(v)}, true
	default:
		for i, v := range values {
			if v > 0xff {
				return out, false
			}
			out[i] = byte(v)
		}
		return out, true
	}
}

func parseIPv4Part(part string) (uint64, bool) {
	if part == "" {
		return 0, false
	}
	base := 10
	digits := part
	switch {
	case strings.HasPrefix(part, "0x") || strings.HasPrefix(part, "0X"):
		base = 16
		digits = part[2:]
		if digits == "" {
			return 0, false
		}
	case len(part) > 1 && part[0] == '0':
		base = 8
		digits = part[1:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsPrivateIPv4 reports whether the address falls in a private or reserved
// range: 0/8, 10/8, 127/8, 169.254/16, 172.16-31/12, 192.168/16,
// 100.64-127/10.
func IsPrivateIPv4(parts [4]byte) bool {
	octet1, octet2 := parts[0], parts[1]
	if octet1 == 0 {
		return true
	}
	if octet1 == 10 {
		return true
	}
	if octet1 == 127 {
		return true
	}
	if octet1 == 169 && octet2 == 254 {
		return true
	}
	if octet1 == 172 && octet2 >= 16 && octet2 <= 31 {
		return true
	}
	if octet1 == 192 && octet2 == 168 {
		return true
	}
	if octet1 == 100 && octet2 >= 64 && octet2 <= 127 {
		return true
	}
	return false
}

// IsPrivateIPAddress reports whether an IP address string (IPv4 or IPv6,
// including non-standard IPv4 literal forms and IPv4-mapped IPv6) is
// private or reserved.
func IsPrivateIPAddress(address string) bool {
	normalized := NormalizeHostname(address)
	if normalized == "" {
		return false
	}

	if strings.Contains(normalized, ":") {
		return isPrivateIPv6(normalized)
	}

	ipv4, ok := decodeIPv4Literal(normalized)
	if !ok {
		return false
	}
	return IsPrivateIPv4(ipv4)
}

func isPrivateIPv6(addr string) bool {
	if addr == "::" || addr == "::1" {
		return true
	}

	// IPv4-mapped forms recurse into the IPv4 check.
	if strings.HasPrefix(addr, "::ffff:") {
		mapped := addr[len("::ffff:"):]
		if strings.Contains(mapped, ".") {
			if ipv4, ok := decodeIPv4Literal(mapped); ok {
				return IsPrivateIPv4(ipv4)
			}
		} else if ip := net.ParseIP(addr); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				return IsPrivateIPv4([4]byte{v4[0], v4[1], v4[2], v4[3]})
			}
		}
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		return IsPrivateIPv4([4]byte{v4[0], v4[1], v4[2], v4[3]})
	}
	// fe80::/10 link-local, fec0::/10 site-local, fc00::/7 unique-local.
	if ip.IsLinkLocalUnicast() || ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	b := []byte(ip.To16())
	if b[0] == 0xfe && b[1]&0xc0 == 0xc0 {
		return true
	}
	if b[0]&0xfe == 0xfc {
		return true
	}
	return false
}

// lookupIP resolves a hostname to its A and AAAA records. Injectable for
// tests.
var lookupIP = net.LookupIP

// ValidatePublicHostname rejects hostnames that are blocked, are private IP
// literals, or resolve to any private address.
func ValidatePublicHostname(hostname string) error {
	normalized := NormalizeHostname(hostname)
	if normalized == "" {
		return fmt.Errorf("%w: empty hostname", ErrInvalidURL)
	}
	if IsBlockedHostname(normalized) {
		return fmt.Errorf("%w: blocked hostname %s", ErrSSRFBlocked, hostname)
	}
	if IsPrivateIPAddress(normalized) {
		return fmt.Errorf("%w: private or internal address", ErrSSRFBlocked)
	}
	// An IP literal that decoded as public needs no DNS.
	if _, ok := decodeIPv4Literal(normalized); ok {
		return nil
	}
	if ip := net.ParseIP(normalized); ip != nil {
		return nil
	}

	ips, err := lookupIP(normalized)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrNetwork, hostname, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: no addresses for %s", ErrNetwork, hostname)
	}
	for _, ip := range ips {
		if IsPrivateIPAddress(ip.String()) {
			return fmt.Errorf("%w: %s resolves to a private address", ErrSSRFBlocked, hostname)
		}
	}
	return nil
}

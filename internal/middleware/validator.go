package middleware

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

// Input validation for the HTTP and CLI boundaries.

// ValidateURL rejects targets that point at this host or a private network
// (SSRF protection). Only literal addresses are checked; names other than
// localhost are not resolved.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: invalid URL format: %v", domain.ErrValidation, err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: localhost targets are not allowed", domain.ErrValidation)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		var ok bool
		if addr, ok = parseInetAton(host); !ok {
			return nil
		}
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsUnspecified() {
		return fmt.Errorf("%w: localhost/internal IPs are not allowed", domain.ErrValidation)
	}
	if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return fmt.Errorf("%w: private IP ranges are not allowed", domain.ErrValidation)
	}
	return nil
}

// parseInetAton reads the legacy IPv4 spellings libc resolvers accept:
// 1 to 4 dot-separated parts, each decimal, octal (leading 0) or hex (0x),
// the last part filling the remaining bytes ("127.1", "0x7f.0.0.1", "2130706433").
func parseInetAton(host string) (netip.Addr, bool) {
	parts := strings.Split(host, ".")
	if len(parts) > 4 {
		return netip.Addr{}, false
	}
	var vals []uint64
	for _, p := range parts {
		base := 10
		switch {
		case strings.HasPrefix(p, "0x"):
			base, p = 16, p[2:]
			if p == "" {
				p = "0"
			}
		case len(p) > 1 && p[0] == '0':
			base, p = 8, p[1:]
		}
		if p == "" || strings.ContainsAny(p, "+-_") {
			return netip.Addr{}, false
		}
		v, err := strconv.ParseUint(p, base, 32)
		if err != nil {
			return netip.Addr{}, false
		}
		vals = append(vals, v)
	}

	var n uint64
	last := len(vals) - 1
	for i, v := range vals[:last] {
		if v > 0xff {
			return netip.Addr{}, false
		}
		n |= v << (8 * (3 - i))
	}
	if vals[last] >= 1<<(8*(4-last)) {
		return netip.Addr{}, false
	}
	n |= vals[last]
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), true
}

// ValidateRunID checks a run id is a UUID.
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: run id cannot be empty", domain.ErrValidation)
	}
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("%w: invalid run id format", domain.ErrValidation)
	}
	return nil
}

// ParseLimit reads a pagination limit; empty means the default.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return domain.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", domain.ErrValidation)
	}
	return domain.ClampLimit(n), nil
}

// ValidateEngines resolves a comma separated engine list.
func ValidateEngines(list string) ([]domain.Engine, error) {
	var out []domain.Engine
	seen := map[domain.Engine]bool{}
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		e, err := domain.ParseEngine(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no engines selected", domain.ErrValidation)
	}
	return out, nil
}

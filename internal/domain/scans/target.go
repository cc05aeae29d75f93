package scans

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// MaxTargetLength bounds the stored target; the SQL stores index it as VARCHAR(2048).
const MaxTargetLength = 2048

// Target is a normalized absolute URL. It is used verbatim as the storage key.
type Target string

// ParseTarget validates raw input and normalizes it: scheme and host are
// lower-cased and the fragment is dropped. Path and query are kept as given.
func ParseTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: url is required", ErrValidation)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrValidation, s)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrValidation, s)
	}
	if err := checkHost(u.Hostname()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if u.Opaque != "" {
		return "", fmt.Errorf("%w: %q is not a hierarchical url", ErrValidation, s)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	out := u.String()
	if len(out) > MaxTargetLength {
		return "", fmt.Errorf("%w: url longer than %d bytes", ErrValidation, MaxTargetLength)
	}
	return Target(out), nil
}

// checkHost accepts IP literals and DNS names made of letters, digits and
// inner hyphens. Hosts reach engine argv, so a leading '-' must never pass.
func checkHost(host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" {
			return fmt.Errorf("host %q: zoned addresses are not allowed", host)
		}
		return nil
	}
	name := strings.TrimSuffix(host, ".")
	if name == "" || len(name) > 253 {
		return fmt.Errorf("host %q: invalid length", host)
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("host %q: empty or oversized label", host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("host %q: label starts or ends with '-'", host)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '-') {
				return fmt.Errorf("host %q: invalid character %q", host, c)
			}
		}
	}
	return nil
}

// Validate re-checks a target that did not come from ParseTarget.
func (t Target) Validate() error {
	parsed, err := ParseTarget(string(t))
	if err != nil {
		return err
	}
	if parsed != t {
		return fmt.Errorf("%w: %q is not normalized (want %q)", ErrValidation, string(t), string(parsed))
	}
	return nil
}

// Host returns the hostname without port, for engines that scan hosts
// rather than URLs. It is empty when the host would not pass ParseTarget.
func (t Target) Host() string {
	u, err := url.Parse(string(t))
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if checkHost(host) != nil {
		return ""
	}
	return host
}

func (t Target) String() string { return string(t) }

package domain

import (
	"regexp"
	"strings"
)

const (
	minHostnameLength = 4
	maxHostnameLength = 253
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeHostname lowercases hostname and checks it against a strict FQDN
// grammar. It returns an error of kind KindInvalidDomain on mismatch.
func NormalizeHostname(hostname string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(h, ".")

	if len(h) < minHostnameLength || len(h) > maxHostnameLength {
		return "", NewError(KindInvalidDomain, "domain name must be between 4 and 253 characters", nil)
	}

	labels := strings.Split(h, ".")
	if len(labels) < 2 {
		return "", NewError(KindInvalidDomain, "domain name must contain at least two labels, e.g. example.com", nil)
	}

	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return "", NewError(KindInvalidDomain,
				"domain labels may only contain letters, digits and inner hyphens: "+quoteLabel(label), nil)
		}
	}

	if strings.Trim(labels[len(labels)-1], "0123456789") == "" {
		return "", NewError(KindInvalidDomain, "IP addresses cannot be used as a custom domain", nil)
	}

	return h, nil
}

func quoteLabel(label string) string {
	if label == "" {
		return `""`
	}
	return `"` + label + `"`
}

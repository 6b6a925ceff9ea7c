package businessflow

import (
	"regexp"
	"strings"
)

// hostnameRegex accepts dotted lowercase labels with an alphabetic or
// punycode (xn--) top-level label. Applied after IDNA normalization, so
// unicode hostnames arrive here already in their xn-- form.
var hostnameRegex = regexp.MustCompile(`^((?:[a-z0-9][a-z0-9-]*[a-z0-9]*|xn--[a-z0-9-]+)\.)+([a-z]{2,}|xn--[a-z0-9-]+)$`)

// aliasRegex restricts custom aliases to URL-safe characters
var aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// Denylist evaluates URLs, hostnames, and aliases against the configured
// block rules. It is immutable after construction and safe for concurrent use.
type Denylist struct {
	words         []string
	domains       []string
	aliases       map[string]struct{}
	selfDomain    string
	strictDomains bool
}

// NewDenylist builds a Denylist from configuration values. Domain and alias
// entries are lowercased; word matching stays case-sensitive on the raw input.
func NewDenylist(words, domains, aliases []string, selfDomain string, strictDomains bool) *Denylist {
	d := &Denylist{
		words:         words,
		selfDomain:    strings.ToLower(selfDomain),
		strictDomains: strictDomains,
		aliases:       make(map[string]struct{}, len(aliases)+1),
	}
	for _, dom := range domains {
		d.domains = append(d.domains, strings.ToLower(dom))
	}
	for _, a := range aliases {
		d.aliases[strings.ToLower(a)] = struct{}{}
	}
	// the API prefix is always reserved, it would shadow the API routes
	d.aliases["api"] = struct{}{}
	return d
}

// ContainsBannedWord checks the raw, pre-normalization URL for blocked
// substrings. Runs before parsing so encoded tricks in invalid URLs are still
// caught.
func (d *Denylist) ContainsBannedWord(rawURL string) bool {
	for _, w := range d.words {
		if w != "" && strings.Contains(rawURL, w) {
			return true
		}
	}
	return false
}

// IsValidHostname reports whether a normalized hostname has an acceptable shape
func (d *Denylist) IsValidHostname(hostname string) bool {
	return hostnameRegex.MatchString(hostname)
}

// IsSelfDomain rejects targets pointing back at the shortener itself
func (d *Denylist) IsSelfDomain(hostname string) bool {
	return d.selfDomain != "" && strings.EqualFold(hostname, d.selfDomain)
}

// IsDomainBanned checks the hostname against the domain blocklist. Strict
// mode requires an exact match; otherwise any parent domain of the hostname
// matches, so a ban on "evil.example" also covers "sub.evil.example".
func (d *Denylist) IsDomainBanned(hostname string) bool {
	h := strings.ToLower(hostname)
	for _, banned := range d.domains {
		if d.strictDomains {
			if h == banned {
				return true
			}
		} else if strings.HasSuffix("."+h, "."+banned) {
			return true
		}
	}
	return false
}

// HasValidAliasCharacters reports whether the alias uses only allowed characters
func (d *Denylist) HasValidAliasCharacters(alias string) bool {
	return aliasRegex.MatchString(alias)
}

// IsAliasBanned checks the alias against the reserved set, case-insensitively
func (d *Denylist) IsAliasBanned(alias string) bool {
	_, ok := d.aliases[strings.ToLower(alias)]
	return ok
}

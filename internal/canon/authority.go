package canon

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
)

// AuthorityClassifier assigns authority tiers to canon sources. Sources are
// either URLs (https://lore.example.com/era3), canon URIs (canon://persona)
// or file paths. Canon URIs are classified under the host "canon". Local
// files come from the configured canon paths and are primary unless a path
// pattern says otherwise.
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	primary      []string
	secondary    []string
	pathPatterns []compiledPattern
}

// CanonScheme is the URI scheme of curated canon sources
const CanonScheme = "canon"

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewAuthorityClassifier creates a classifier; invalid path patterns are skipped
func NewAuthorityClassifier(cfg model.AuthorityConfig) *AuthorityClassifier {
	c := &AuthorityClassifier{
		domainMap: make(map[string]model.AuthorityTier, len(cfg.DomainMap)),
		primary:   lowerAll(cfg.PrimaryDomains),
		secondary: lowerAll(cfg.SecondaryDomains),
	}

	for host, tier := range cfg.DomainMap {
		c.domainMap[strings.ToLower(host)] = model.ParseTier(tier)
	}

	for _, pp := range cfg.PathPatterns {
		re, err := regexp.Compile(pp.Pattern)
		if err != nil {
			continue
		}
		c.pathPatterns = append(c.pathPatterns, compiledPattern{
			pattern: re,
			tier:    model.ParseTier(pp.Tier),
		})
	}

	return c
}

// Classify returns the tier of a source, defaulting to tertiary for
// unknown hosts and empty sources
func (a *AuthorityClassifier) Classify(source string) model.AuthorityTier {
	if strings.TrimSpace(source) == "" {
		return model.TierTertiary
	}
	host, path := splitSource(source)

	// Explicit mappings win
	if tier, ok := a.domainMap[host]; ok {
		return tier
	}

	if matchesDomain(host, a.primary) {
		return model.TierPrimary
	}
	if matchesDomain(host, a.secondary) {
		return model.TierSecondary
	}

	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(path) {
			return cp.tier
		}
	}

	if !strings.Contains(source, "://") {
		return model.TierPrimary
	}
	return model.TierTertiary
}

// splitSource returns a lowercase host (empty for file paths) and a slash
// path. canon://persona/world yields host "canon" and path "persona/world".
func splitSource(source string) (string, string) {
	if strings.Contains(source, "://") {
		parsed, err := url.Parse(source)
		if err == nil {
			if strings.EqualFold(parsed.Scheme, CanonScheme) {
				return CanonScheme, strings.TrimPrefix(parsed.Host+parsed.Path, "/")
			}
			return strings.ToLower(parsed.Hostname()), parsed.Path
		}
	}
	return "", filepath.ToSlash(source)
}

// matchesDomain reports whether host equals or is a subdomain of any domain
func matchesDomain(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

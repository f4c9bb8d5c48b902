package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// LinkKind classifies an outbound link on a fetched page
type LinkKind string

const (
	LinkCitation  LinkKind = "citation"
	LinkReference LinkKind = "reference"
	LinkExternal  LinkKind = "external"
)

// Link is an absolute http(s) link found in a page
type Link struct {
	URL      string   `json:"url"`
	Anchor   string   `json:"anchor,omitempty"`
	Host     string   `json:"host"`
	SameHost bool     `json:"same_host"`
	Kind     LinkKind `json:"kind"`
}

// Links returns the unique http(s) links of an HTML page in document
// order, resolved against pageURL. At most limit links are returned when
// limit is positive.
func Links(htmlContent, pageURL string, limit int) ([]Link, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []Link
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if link, ok := newLink(base, n); ok && !seen[link.URL] {
				seen[link.URL] = true
				links = append(links, link)
				if limit > 0 && len(links) == limit {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	return links, nil
}

func newLink(base *url.URL, n *html.Node) (Link, bool) {
	href := strings.TrimSpace(attr(n, "href"))
	resolved := resolveHref(base, href)
	if resolved == nil {
		return Link{}, false
	}

	var text string
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		text = strings.TrimSpace(n.FirstChild.Data)
	}

	return Link{
		URL:      resolved.String(),
		Anchor:   text,
		Host:     resolved.Host,
		SameHost: strings.EqualFold(resolved.Host, base.Host),
		Kind:     linkKind(href, attr(n, "class")),
	}, true
}

// resolveHref drops fragments-only, javascript: and mailto: links and
// anything that does not resolve to http(s)
func resolveHref(base *url.URL, href string) *url.URL {
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return nil
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	return resolved
}

func linkKind(href, class string) LinkKind {
	lower := strings.ToLower(href)
	switch {
	case strings.Contains(lower, "cite") || strings.Contains(lower, "#ref") || strings.Contains(class, "reference"):
		return LinkCitation
	case strings.Contains(lower, "reference") || strings.Contains(lower, "footnote"):
		return LinkReference
	default:
		return LinkExternal
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

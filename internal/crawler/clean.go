package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the indexable content of one HTML document.
type Page struct {
	Text  string
	Links []string
}

// skipped elements contribute neither text nor links.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Style:    true,
	atom.Script:   true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

// Clean extracts the visible text and outbound links of doc. Links are
// resolved against base, stripped of fragments, limited to http and https,
// and de-duplicated in document order. Text nodes are joined by spaces;
// comments and tags contribute nothing.
func Clean(base *url.URL, doc string) Page {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Page{}
	}

	var (
		text  strings.Builder
		links []string
		seen  = make(map[string]struct{})
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.A {
				if link, ok := resolve(base, attr(n, "href")); ok {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						links = append(links, link)
					}
				}
			}
		case html.TextNode:
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(n.Data)
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return Page{Text: text.String(), Links: links}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolve makes href absolute against base and drops its fragment.
func resolve(base *url.URL, href string) (string, bool) {
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}

// normalizeSeed validates a crawl seed and returns its canonical form.
func normalizeSeed(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return "", false
	}
	return resolve(nil, u.String())
}

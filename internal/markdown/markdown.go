// Package markdown renders repository README files to sanitised HTML with
// relative links pointing at raw repository content.
package markdown

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	renderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	policy = bluemonday.UGCPolicy()
)

// Render converts markdown to HTML, strips unsafe markup and rewrites relative
// href/src attributes against base. An empty base leaves links untouched.
func Render(src, base string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: render: %w", err)
	}
	clean := policy.SanitizeBytes(buf.Bytes())
	if base == "" {
		return string(clean), nil
	}
	return RewriteLinks(string(clean), base)
}

// RewriteLinks resolves relative href and src attributes in an HTML fragment
// against base.
func RewriteLinks(fragment, base string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("markdown: parse html: %w", err)
	}
	var out bytes.Buffer
	for _, n := range nodes {
		rewrite(n, base)
		if err := html.Render(&out, n); err != nil {
			return "", fmt.Errorf("markdown: render html: %w", err)
		}
	}
	return out.String(), nil
}

func rewrite(n *html.Node, base string) {
	if n.Type == html.ElementNode {
		for i, a := range n.Attr {
			if a.Key != "href" && a.Key != "src" {
				continue
			}
			if resolved, ok := Resolve(a.Val, base); ok {
				n.Attr[i].Val = resolved
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewrite(c, base)
	}
}

// Resolve returns base joined with ref when ref is a relative path. Anchors,
// absolute URLs and scheme-qualified links are left alone.
func Resolve(ref, base string) (string, bool) {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p := path.Clean("/" + u.Path)
	if p == "/" {
		return "", false
	}
	resolved := strings.TrimRight(base, "/") + p
	if u.RawQuery != "" {
		resolved += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		resolved += "#" + u.Fragment
	}
	return resolved, true
}

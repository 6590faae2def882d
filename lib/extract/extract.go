// Package extract discovers sub-resources referenced by a fetched document.
// Discovery is bounded to one hop: it never parses the documents it
// discovers.
package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"wbmirror/lib/wayback"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("wbmirror/extract")

var (
	styleImportRegex = regexp.MustCompile(`@import\s+url\(["']?([^"'()]+)["']?\)`)
	styleURLRegex    = regexp.MustCompile(`url\(["']?([^"'()]+)["']?\)`)
	cssImportRegex   = regexp.MustCompile(`@import\s+["']([^"';]+)["']`)
)

func getText(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getText(child, buffer)
	}
}

// Resources scans an HTML document for stylesheets, scripts, images, media
// sources, icons, iframes and inline-style references, returning absolute
// URLs expressed in original-site terms, deduplicated in discovery order.
// Malformed markup degrades to an empty result.
func Resources(ctx context.Context, content []byte, baseURL string) []string {
	ctx, span := tracer.Start(ctx, "Resources")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse html for resources", "base", baseURL, "err", err)
		return nil
	}

	var candidates []string
	add := func(u string, ok bool) {
		if ok && u != "" {
			candidates = append(candidates, u)
		}
	}

	doc.Find("link[rel=stylesheet]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Attr("href"))
	})
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Attr("src"))
	})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Attr("src"))
	})

	// inline <style> blocks may pull in imports and backgrounds
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		var buffer bytes.Buffer
		for _, node := range sel.Nodes {
			getText(node, &buffer)
		}
		text := buffer.String()
		for _, groups := range styleImportRegex.FindAllStringSubmatch(text, -1) {
			add(groups[1], true)
		}
		for _, groups := range styleURLRegex.FindAllStringSubmatch(text, -1) {
			add(groups[1], true)
		}
	})

	doc.Find("source[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Attr("src"))
	})
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel, _ := sel.Attr("rel")
		if strings.Contains(strings.ToLower(rel), "icon") {
			add(sel.Attr("href"))
		}
	})
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		for _, groups := range styleURLRegex.FindAllStringSubmatch(style, -1) {
			add(groups[1], true)
		}
	})
	doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.Attr("src"))
	})

	resources := normalize(candidates, baseURL)
	span.SetAttributes(attribute.Int("count", len(resources)))
	return resources
}

// CSSResources scans a stylesheet body for url() and @import references.
// Relative paths resolve against the stylesheet's own URL, not the page's.
func CSSResources(ctx context.Context, content []byte, baseURL string) []string {
	ctx, span := tracer.Start(ctx, "CSSResources")
	defer span.End()

	text := string(content)
	var candidates []string
	for _, groups := range styleURLRegex.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, groups[1])
	}
	for _, groups := range cssImportRegex.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, groups[1])
	}

	resources := normalize(candidates, baseURL)
	span.SetAttributes(attribute.Int("count", len(resources)))
	return resources
}

// normalize makes every candidate absolute, strips leftover archive
// prefixes, and deduplicates while preserving discovery order.
func normalize(candidates []string, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var resources []string
	seen := map[string]bool{}
	for _, candidate := range candidates {
		if candidate == "" ||
			strings.HasPrefix(candidate, "data:") ||
			strings.HasPrefix(candidate, "#") ||
			strings.HasPrefix(candidate, "javascript:") ||
			strings.HasPrefix(candidate, "about:") {
			continue
		}

		candidate = wayback.StripArchivePrefix(candidate)

		if strings.HasPrefix(candidate, "//") {
			candidate = "https:" + candidate
		} else if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
			if base == nil {
				continue
			}
			ref, err := url.Parse(candidate)
			if err != nil {
				continue
			}
			candidate = base.ResolveReference(ref).String()
		}

		normalized := strings.TrimRight(candidate, "/")
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		resources = append(resources, normalized)
	}
	return resources
}

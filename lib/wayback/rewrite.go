package wayback

import (
	"bytes"
	"regexp"
	"strings"
)

// The archive serves captures with a toolbar, analytics hooks and rewritten
// URLs injected into the original markup. Rewriting is an ordered list of
// (pattern, replacement) rules applied over the raw byte buffer, so the rule
// set stays auditable and testable apart from the orchestration. Every rule
// is idempotent: once unwrapped or removed, nothing matches a second pass.

type rule struct {
	pattern *regexp.Regexp
	repl    []byte
}

func (r rule) apply(content []byte) []byte {
	return r.pattern.ReplaceAll(content, r.repl)
}

// Fixed blocks the archive injects into every served HTML capture.
var removalRules = []rule{
	{regexp.MustCompile(`(?s)<!-- BEGIN WAYBACK TOOLBAR INSERT -->.*?<!-- END WAYBACK TOOLBAR INSERT -->`), nil},
	{regexp.MustCompile(`<script type="text/javascript" src="/static/js/analytics\.js"></script>`), nil},
	{regexp.MustCompile(`<script type="text/javascript">archive_analytics\.values\.server_name=[^<]+</script>`), nil},
	{regexp.MustCompile(`<link type="text/css" rel="stylesheet" href="/static/css/banner-styles\.css"/>`), nil},
}

// A capture of a redirecting page is served as a "use your impatience" page
// rather than an HTTP redirect. It is recognized only when all three
// markers are present.
var (
	redirectStatusRegex   = regexp.MustCompile(`<p [^>]+>Got an HTTP (30\d) response at crawl time</p>`)
	redirectTitleRegex    = regexp.MustCompile(`<title>\s*Internet Archive Wayback Machine\s*</title>`)
	redirectLocationRegex = regexp.MustCompile(`<a href="([^"]+)">Impatient\?</a>`)
)

// htmlRules un-rewrite archive references in HTML back to original form.
// Empty replacements drop the reference entirely.
var htmlRules = []rule{
	// /web/TIMESTAMP(flag)/URL inside href/src attributes
	{regexp.MustCompile(`(?i)(href|src)="(/web/\d+[a-z_]*/)(https?[^"]+)"`), []byte(`${1}="${3}"`)},
	// the same shape inside inline CSS url()
	{regexp.MustCompile(`(?i)url\((/web/\d+[a-z_]*/)(https?[^)]+)\)`), []byte(`url(${2})`)},
	{regexp.MustCompile(`(?i)(href|src)="(/web/\d+im_/)(https?[^"]+)"`), []byte(`${1}="${3}"`)},
	{regexp.MustCompile(`(?i)(href|src)="(/web/\d+js_/)(https?[^"]+)"`), []byte(`${1}="${3}"`)},
	{regexp.MustCompile(`(?i)(href|src)="(/web/\d+cs_/)(https?[^"]+)"`), []byte(`${1}="${3}"`)},
	// the archive's static-asset CDN has no original-site equivalent
	{regexp.MustCompile(`(?i)(href|src)="(https?://web-static\.archive\.org/_static/[^"]+)"`), nil},
	// full-origin archive URLs
	{regexp.MustCompile(`(?i)(href|src)="(https?://web\.archive\.org/web/\d+[a-z_]*/)([^"]+)"`), []byte(`${1}="${3}"`)},
	// script/link tags loading archive-origin assets
	{regexp.MustCompile(`(?is)<script[^>]*src="(https?://web(?:-static)?\.archive\.org/[^"]+)"[^>]*>.*?</script>`), nil},
	{regexp.MustCompile(`(?i)<link[^>]*href="(https?://web(?:-static)?\.archive\.org/[^"]+)"[^>]*/?>`), nil},
	// subresource-integrity checks would block the now-foreign resources
	{regexp.MustCompile(`(?i)integrity="[^"]+"`), nil},
	{regexp.MustCompile(`(?i)crossorigin="[^"]+"`), nil},
	// toolbar container and injected client-side shims
	{regexp.MustCompile(`(?s)<div id="wm-ipp-base".*?</div>`), nil},
	{regexp.MustCompile(`(?s)<script[^>]*wombat\.js[^>]*>.*?</script>`), nil},
	{regexp.MustCompile(`(?s)<script[^>]*ruffle\.js[^>]*>.*?</script>`), nil},
	{regexp.MustCompile(`(?s)<script[^>]*>\s*__wm\.init\([^<]*</script>`), nil},
	{regexp.MustCompile(`(?s)<script>window\.RufflePlayer[^<]*</script>`), nil},
	{regexp.MustCompile(`(?s)<script[^>]*>\s*window\.analytics[^<]*</script>`), nil},
}

// cssRules un-rewrite archive references inside stylesheets.
var cssRules = []rule{
	{regexp.MustCompile(`(?i)url\(['"]?(/web/\d+[a-z_]*/)([^'")]+)['"]?\)`), []byte(`url("${2}")`)},
	{regexp.MustCompile(`(?i)url\(['"]?(https?://web\.archive\.org/web/\d+[a-z_]*/)([^'")]+)['"]?\)`), []byte(`url("${2}")`)},
	{regexp.MustCompile(`(?i)@import\s+['"]?(/web/\d+[a-z_]*/)([^'";]+)['"]?`), []byte(`@import "${2}"`)},
	{regexp.MustCompile(`(?i)@import\s+['"]?(https?://web\.archive\.org/web/\d+[a-z_]*/)([^'";]+)['"]?`), []byte(`@import "${2}"`)},
	{regexp.MustCompile(`(?i)url\(['"]?(https?://web-static\.archive\.org/_static/[^'"]+)['"]?\)`), nil},
}

// archivePrefixRegex matches leftover archive path prefixes on discovered
// resource URLs.
var archivePrefixRegex = regexp.MustCompile(`^(?:https?://web\.archive\.org)?/web/\d+[a-z_]*/`)

// StripArchivePrefix expresses a discovered URL in original-site terms.
func StripArchivePrefix(url string) string {
	return archivePrefixRegex.ReplaceAllString(url, "")
}

// IsHTML reports whether content looks like an HTML document, judging by
// the first 1000 bytes.
func IsHTML(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	sample = bytes.ToLower(sample)
	return bytes.Contains(sample, []byte("<!doctype html>")) || bytes.Contains(sample, []byte("<html"))
}

// Redirect describes an archive-side client redirect page.
type Redirect struct {
	Code     string
	Location string
}

// DetectRedirect recognizes an archive redirect page. All three markers
// must match; anything less leaves the content untouched downstream.
func DetectRedirect(content []byte) (Redirect, bool) {
	status := redirectStatusRegex.FindSubmatch(content)
	if status == nil {
		return Redirect{}, false
	}
	if !redirectTitleRegex.Match(content) {
		return Redirect{}, false
	}
	location := redirectLocationRegex.FindSubmatch(content)
	if location == nil {
		return Redirect{}, false
	}
	return Redirect{
		Code:     string(status[1]),
		Location: string(location[1]),
	}, true
}

func isHTMLType(contentType string, content []byte) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || IsHTML(content)
}

func isCSSType(contentType, originalURL string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/css") ||
		strings.HasSuffix(strings.ToLower(originalURL), ".css")
}

// Rewrite strips archive injections from content and restores references to
// original form. contentType is a hint from the response headers; the
// original URL disambiguates stylesheets served without one. A non-empty
// root is substituted into archive-relative references that survive
// unwrapping, so they resolve against root instead of the archive origin.
// Rewriting already-rewritten content is a no-op.
func Rewrite(content []byte, contentType, originalURL, root, timestamp string) []byte {
	if removalRules[0].pattern.Match(content) || IsHTML(content) {
		for _, r := range removalRules {
			content = r.apply(content)
		}
	}

	if isHTMLType(contentType, content) {
		for _, r := range htmlRules {
			content = r.apply(content)
		}
	} else if isCSSType(contentType, originalURL) {
		for _, r := range cssRules {
			content = r.apply(content)
		}
	}

	if root != "" {
		rootRule := rule{
			pattern: regexp.MustCompile(`(['"])(/web/` + regexp.QuoteMeta(timestamp) + `)`),
			repl:    []byte(`${1}` + strings.ReplaceAll(root, "$", "$$") + `${2}`),
		}
		content = rootRule.apply(content)
	}

	return content
}

// Package mirror orchestrates a full archive run: it resolves capture
// timestamps, fetches each capture, writes it into the local mirror layout
// and drives one-hop recursive downloads of discovered sub-resources.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"wbmirror/lib/extract"
	"wbmirror/lib/ratelimit"
	"wbmirror/lib/wayback"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wbmirror/mirror")

// Pack mirrors the captures of one logical URL. All fetches for a run are
// sequential, ordered by timestamp and then by resource-discovery order
// within each page; the shared limiter bounds the whole run.
type Pack struct {
	URL     string
	FullURL string

	parsedURL *url.URL
	session   wayback.Session
	limiter   *ratelimit.Limiter

	Timestamps []string
	Assets     []wayback.Asset
}

type Options struct {
	// Timestamps fixes the capture set; when nil it is resolved through the
	// CDX search API.
	Timestamps  []string
	FromDate    string
	ToDate      string
	UniquesOnly bool
	Collapse    string

	// Session is the injected transport; when nil a resty session is built.
	Session wayback.Session
	// Limiter is shared across every request of the run; when nil a
	// default 14-per-minute limiter is used.
	Limiter *ratelimit.Limiter
}

func New(ctx context.Context, rawURL string, opts Options) (*Pack, error) {
	ctx, span := tracer.Start(ctx, "New", trace.WithAttributes(
		attribute.String("url", rawURL),
	))
	defer span.End()

	fullURL := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "" {
		fullURL = "http://" + rawURL
	}
	parsedURL, err := url.Parse(fullURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	session := opts.Session
	if session == nil {
		session, err = wayback.NewSession(wayback.SessionOptions{})
		if err != nil {
			return nil, err
		}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewDefaultLimiter()
	}

	timestamps := opts.Timestamps
	if timestamps == nil {
		snapshots, err := wayback.Search(ctx, session, limiter, rawURL, wayback.SearchOptions{
			FromDate:    opts.FromDate,
			ToDate:      opts.ToDate,
			UniquesOnly: opts.UniquesOnly,
			Collapse:    opts.Collapse,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve capture set")
			return nil, err
		}
		timestamps = make([]string, 0, len(snapshots))
		for _, snap := range snapshots {
			timestamps = append(timestamps, snap.Timestamp())
		}
	}

	assets := make([]wayback.Asset, 0, len(timestamps))
	for _, ts := range timestamps {
		asset, err := wayback.NewAsset(rawURL, ts)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return &Pack{
		URL:        rawURL,
		FullURL:    fullURL,
		parsedURL:  parsedURL,
		session:    session,
		limiter:    limiter,
		Timestamps: timestamps,
		Assets:     assets,
	}, nil
}

type DownloadOptions struct {
	// Raw writes captures byte-for-byte as archived, skipping rewriting and
	// resource discovery.
	Raw bool
	// Root replaces surviving archive-relative references, see
	// wayback.Rewrite.
	Root string
	// IgnoreErrors logs and skips per-asset failures instead of aborting.
	IgnoreErrors bool
	// NoClobber skips fetching when a non-empty file already exists at the
	// target path. Zero-byte files count as absent and are refetched.
	NoClobber bool
	// Progress renders a progress bar over the timestamp iteration. Purely
	// observational; order and error semantics are unaffected.
	Progress bool
	// Delay is a fixed inter-request sleep applied from the second capture
	// on, replacing the rate limiter on those iterations.
	Delay time.Duration
	// FallbackChar substitutes OS-forbidden path characters, default '_'.
	FallbackChar rune
	// DownloadAssets enables one-hop discovery and download of the
	// sub-resources referenced by fetched HTML and CSS documents.
	DownloadAssets bool
}

// DownloadTo mirrors every capture of the pack into directory, one subtree
// per timestamp.
func (p *Pack) DownloadTo(ctx context.Context, directory string, opts DownloadOptions) error {
	ctx, span := tracer.Start(ctx, "DownloadTo", trace.WithAttributes(
		attribute.String("directory", directory),
		attribute.Int("captures", len(p.Assets)),
	))
	defer span.End()

	if opts.FallbackChar == 0 {
		opts.FallbackChar = DefaultFallbackChar
	}

	fetcher := wayback.Fetcher{Session: p.session, Limiter: p.limiter}
	delayFetcher := wayback.Fetcher{Session: p.session}
	fetchOpts := wayback.FetchOptions{Raw: opts.Raw, Root: opts.Root}

	report := newProgressReport(opts.Progress, p.URL, len(p.Assets))
	defer report.stop()

	for i, asset := range p.Assets {
		pathHead, pathTail := splitURLPath(p.parsedURL.Path)
		filedir, filename := localPath(
			directory, asset.Timestamp, p.parsedURL.Host,
			pathHead, pathTail, opts.FallbackChar,
		)

		if opts.NoClobber && fileExists(filename) {
			report.step()
			continue
		}

		pageFetcher := fetcher
		if i > 0 && opts.Delay > 0 {
			slog.InfoContext(ctx, "sleeping between captures", "delay", opts.Delay)
			if err := sleep(ctx, opts.Delay); err != nil {
				return err
			}
			pageFetcher = delayFetcher
		}

		slog.InfoContext(ctx, "fetching capture",
			"url", asset.OriginalURL, "timestamp", asset.Timestamp)

		content, err := pageFetcher.Fetch(ctx, asset, fetchOpts)
		if err != nil {
			return err
		}
		if content == nil {
			report.step()
			continue
		}

		err = writeFile(ctx, filedir, filename, content)
		if err != nil {
			if failed := p.itemFailure(ctx, span, err, opts.IgnoreErrors); failed != nil {
				return failed
			}
			report.step()
			continue
		}

		if opts.DownloadAssets && !opts.Raw {
			err = p.downloadPageResources(ctx, asset, pathTail, content, directory, fetcher, opts)
			if err != nil {
				return err
			}
		}
		report.step()
	}

	return nil
}

// downloadPageResources runs one-hop discovery over a written page and
// fetches each discovered resource at the page's timestamp.
func (p *Pack) downloadPageResources(
	ctx context.Context,
	asset wayback.Asset,
	pathTail string,
	content []byte,
	directory string,
	fetcher wayback.Fetcher,
	opts DownloadOptions,
) error {
	ctx, span := tracer.Start(ctx, "downloadPageResources")
	defer span.End()

	var resources []string
	switch {
	case strings.HasSuffix(pathTail, ".html"), strings.HasSuffix(pathTail, ".htm"), wayback.IsHTML(content):
		resources = extract.Resources(ctx, content, p.FullURL)
	case strings.HasSuffix(pathTail, ".css"):
		resources = extract.CSSResources(ctx, content, p.FullURL)
	default:
		return nil
	}
	if len(resources) > 0 {
		slog.InfoContext(ctx, "found resources to download", "count", len(resources))
	}

	for _, resource := range resources {
		err := p.downloadResource(ctx, resource, asset.Timestamp, directory, fetcher, opts)
		if err != nil {
			if failed := p.itemFailure(ctx, span, err, opts.IgnoreErrors); failed != nil {
				return failed
			}
		}
	}
	return nil
}

// downloadResource fetches one discovered sub-resource and writes it under
// the same timestamp subtree as its parent document.
func (p *Pack) downloadResource(
	ctx context.Context,
	resource, timestamp, directory string,
	fetcher wayback.Fetcher,
	opts DownloadOptions,
) error {
	resource = wayback.StripArchivePrefix(resource)

	asset, err := wayback.NewAsset(resource, timestamp)
	if err != nil {
		return err
	}
	parsed, err := url.Parse(resource)
	if err != nil {
		return fmt.Errorf("parse resource url: %w", err)
	}

	pathHead, pathTail := splitResourcePath(parsed.Path)
	pathTail = ensureExtension(pathTail, resource)

	filedir, filename := localPath(
		directory, timestamp, parsed.Host,
		pathHead, pathTail, opts.FallbackChar,
	)
	if opts.NoClobber && fileExists(filename) {
		slog.DebugContext(ctx, "skipping existing file", "path", filename)
		return nil
	}

	slog.InfoContext(ctx, "fetching resource", "url", resource, "timestamp", timestamp)

	content, err := fetcher.Fetch(ctx, asset, wayback.FetchOptions{Raw: opts.Raw, Root: opts.Root})
	if err != nil {
		return err
	}
	if content == nil {
		return nil
	}

	return writeFile(ctx, filedir, filename, content)
}

// itemFailure applies the ignore-errors policy to a per-asset failure.
func (p *Pack) itemFailure(ctx context.Context, span trace.Span, err error, ignore bool) error {
	if ignore {
		slog.WarnContext(ctx, "skipping failed item", "err", err)
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "aborting run")
	return err
}

// splitResourcePath names a discovered resource's file. Directory-style
// paths take the last segment with an .html suffix, or index.html at the
// site root.
func splitResourcePath(path string) (head, tail string) {
	head, tail = splitURLPath(path)
	if tail == "index.html" && path != "" && path != "/" {
		trimmed := strings.TrimRight(path, "/")
		if slash := strings.LastIndex(trimmed, "/"); slash >= 0 && trimmed[slash+1:] != "" {
			tail = trimmed[slash+1:] + ".html"
			head = trimmed[:slash]
		}
	}
	return head, tail
}

var knownExtensions = []string{
	".js", ".css", ".html", ".htm",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
}

// ensureExtension appends an inferred extension when the resource name has
// none, guessing the content type from the URL.
func ensureExtension(tail, resource string) string {
	for _, ext := range knownExtensions {
		if strings.HasSuffix(tail, ext) {
			return tail
		}
	}
	switch guessContentType(resource) {
	case "javascript":
		return tail + ".js"
	case "css":
		return tail + ".css"
	case "html":
		return tail + ".html"
	case "image/png":
		return tail + ".png"
	case "image/jpeg":
		return tail + ".jpg"
	case "image/gif":
		return tail + ".gif"
	case "image/svg":
		return tail + ".svg"
	}
	return tail
}

func guessContentType(resource string) string {
	lower := strings.ToLower(resource)
	switch {
	case strings.Contains(lower, ".js") || strings.Contains(lower, "javascript"):
		return "javascript"
	case strings.Contains(lower, ".css") || strings.Contains(lower, "stylesheet"):
		return "css"
	case strings.Contains(lower, ".html") || strings.Contains(lower, ".htm"):
		return "html"
	case strings.Contains(lower, ".jpg") || strings.Contains(lower, ".jpeg"):
		return "image/jpeg"
	case strings.Contains(lower, ".png"):
		return "image/png"
	case strings.Contains(lower, ".gif"):
		return "image/gif"
	case strings.Contains(lower, ".svg"):
		return "image/svg"
	}
	return "unknown"
}

// fileExists reports whether a non-empty file is already at path. Truncated
// zero-byte leftovers from a killed run count as absent.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func writeFile(ctx context.Context, filedir, filename string, content []byte) error {
	err := os.MkdirAll(filedir, 0o755)
	if err != nil && !os.IsExist(err) {
		return fmt.Errorf("create directory: %w", err)
	}
	slog.InfoContext(ctx, "writing file", "path", filename)
	err = os.WriteFile(filename, content, 0o644)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

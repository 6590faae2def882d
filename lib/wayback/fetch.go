package wayback

import (
	"context"
	"log/slog"
	"strings"

	"wbmirror/lib/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Fetcher retrieves captures through the shared rate limiter. The limiter is
// consulted immediately before every outbound request, including the second
// fetch when an archive redirect page is followed. A nil limiter skips
// waiting; the orchestrator uses that when a fixed inter-request delay
// replaces rate limiting for an iteration.
type Fetcher struct {
	Session Session
	Limiter *ratelimit.Limiter
}

func (f Fetcher) wait(ctx context.Context) error {
	if f.Limiter == nil {
		return nil
	}
	return f.Limiter.Wait(ctx)
}

type FetchOptions struct {
	// Raw requests the capture byte-for-byte as archived and skips rewriting.
	Raw bool
	// Root replaces surviving archive-relative references, see Rewrite.
	Root string
}

// Fetch retrieves asset's capture. A transport failure surfaces as a nil
// body with a nil error so the caller decides whether to skip or abort;
// only rate-limiter cancellation produces an error.
func (f Fetcher) Fetch(ctx context.Context, asset Asset, opts FetchOptions) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch", trace.WithAttributes(
		attribute.String("url", asset.OriginalURL),
		attribute.String("timestamp", asset.Timestamp),
	))
	defer span.End()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	res, err := f.Session.Get(ctx, asset.ArchiveURL(opts.Raw), nil)
	if err != nil || res == nil {
		slog.WarnContext(ctx, "transport could not produce a response",
			"url", asset.OriginalURL, "timestamp", asset.Timestamp)
		return nil, nil
	}

	content := res.Body
	if opts.Raw {
		return content, nil
	}

	if redirect, ok := DetectRedirect(content); ok {
		root := opts.Root
		if root == "" {
			root = DefaultRoot
		}
		location := redirect.Location
		if !strings.HasPrefix(location, "http") {
			location = root + location
		}
		slog.InfoContext(ctx, "encountered archive redirect",
			"code", redirect.Code, "location", location)

		if f.Session.FollowRedirects() {
			if err := f.wait(ctx); err != nil {
				return nil, err
			}
			redirected, err := f.Session.Get(ctx, location, nil)
			if err == nil && redirected != nil {
				content = redirected.Body
				res = redirected
			}
		}
	}

	return Rewrite(content, res.ContentType(), asset.OriginalURL, opts.Root, asset.Timestamp), nil
}

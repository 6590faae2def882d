package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"wbmirror/lib/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("wbmirror/wayback")

const SearchURL = "https://web.archive.org/cdx/search/cdx"

var (
	ErrSearchUnavailable = fmt.Errorf("difficulty connecting to the CDX API")
	ErrMissingDupeCount  = fmt.Errorf("CDX API not respecting showDupeCount=true; retry without uniques-only")
)

// Snapshot is one CDX result row, keyed by the field names the API returned
// in its header row.
type Snapshot struct {
	Fields map[string]string
}

func (s Snapshot) Timestamp() string {
	return s.Fields["timestamp"]
}

func (s Snapshot) DupeCount() (int, bool) {
	v, ok := s.Fields["dupecount"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

type SearchOptions struct {
	FromDate    string
	ToDate      string
	UniquesOnly bool
	Collapse    string
}

// Search queries the CDX API for captures of url, oldest first. A non-200
// response yields an empty result, a transport failure yields
// ErrSearchUnavailable. With UniquesOnly only first-seen captures
// (dupecount == 0) are kept; that requires the dupecount field in results.
func Search(ctx context.Context, session Session, limiter *ratelimit.Limiter, url string, opts SearchOptions) ([]Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	params := map[string]string{
		"url":           url,
		"showDupeCount": "true",
		"output":        "json",
	}
	if opts.FromDate != "" {
		params["from"] = opts.FromDate
	}
	if opts.ToDate != "" {
		params["to"] = opts.ToDate
	}
	if opts.Collapse != "" {
		params["collapse"] = opts.Collapse
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res, err := session.Get(ctx, SearchURL, params)
	if err != nil || res == nil {
		span.SetStatus(codes.Error, "cdx transport failure")
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	if res.StatusCode != 200 {
		slog.InfoContext(ctx, "cdx error response",
			"status", res.StatusCode,
			"body", strings.TrimSpace(string(res.Body)),
		)
		return nil, nil
	}

	var rows [][]string
	err = json.Unmarshal(res.Body, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode cdx payload")
		return nil, fmt.Errorf("decode cdx payload: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	fields := rows[0]
	snapshots := make([]Snapshot, 0, len(rows)-1)
	for _, row := range rows[1:] {
		snap := Snapshot{Fields: map[string]string{}}
		for i, name := range fields {
			if i < len(row) {
				snap.Fields[name] = row[i]
			}
		}
		snapshots = append(snapshots, snap)
	}

	if opts.UniquesOnly {
		uniques := make([]Snapshot, 0, len(snapshots))
		for _, snap := range snapshots {
			count, ok := snap.DupeCount()
			if !ok {
				span.SetStatus(codes.Error, ErrMissingDupeCount.Error())
				return nil, ErrMissingDupeCount
			}
			if count == 0 {
				uniques = append(uniques, snap)
			}
		}
		return uniques, nil
	}
	return snapshots, nil
}

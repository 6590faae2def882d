package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"wbmirror/lib/configutil"
	"wbmirror/lib/mirror"
	"wbmirror/lib/ratelimit"
	"wbmirror/lib/serviceutil"
	"wbmirror/lib/telemetry"
	"wbmirror/lib/wayback"

	"github.com/spf13/cobra"
)

// Config holds defaults read from wbmirror.json5, all overridable by flags.
type Config struct {
	UserAgent     string `json:"user_agent"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	FallbackChar  string `json:"fallback_char"`
	Directory     string `json:"directory"`
}

var flags struct {
	directory       string
	timestamps      []string
	fromDate        string
	toDate          string
	uniquesOnly     bool
	collapse        string
	raw             bool
	root            string
	noClobber       bool
	ignoreErrors    bool
	progress        bool
	delay           time.Duration
	maxRequests     int
	window          time.Duration
	userAgent       string
	followRedirects bool
	fallbackChar    string
	noAssets        bool
	verbose         bool
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.directory, "dir", "d", "", "directory to save the mirror into (default: the wbmirror.json5 directory, else \"wayback\")")
	f.StringSliceVar(&flags.timestamps, "timestamp", nil, "fetch only these capture timestamps instead of searching")
	f.StringVar(&flags.fromDate, "from-date", "", "earliest capture date (e.g. 20200101)")
	f.StringVar(&flags.toDate, "to-date", "", "latest capture date")
	f.BoolVar(&flags.uniquesOnly, "uniques-only", false, "fetch only first-seen captures")
	f.StringVar(&flags.collapse, "collapse", "", "CDX collapse parameter (e.g. timestamp:6)")
	f.BoolVar(&flags.raw, "raw", false, "save captures byte-for-byte as archived, without any rewriting")
	f.StringVar(&flags.root, "root", wayback.DefaultRoot, "root to prepend to surviving archive-relative references")
	f.BoolVar(&flags.noClobber, "no-clobber", false, "skip captures that already have a non-empty local file")
	f.BoolVar(&flags.ignoreErrors, "ignore-errors", false, "log and skip failed items instead of aborting")
	f.BoolVarP(&flags.progress, "progress", "p", false, "render a progress bar")
	f.DurationVar(&flags.delay, "delay", 0, "fixed sleep between captures, replacing rate limiting")
	f.IntVar(&flags.maxRequests, "max-requests", 0, "rate limit: maximum requests per window (default 14)")
	f.DurationVar(&flags.window, "window", 0, "rate limit window (default 1m)")
	f.StringVar(&flags.userAgent, "user-agent", "", "user agent for archive requests")
	f.BoolVar(&flags.followRedirects, "follow-redirects", false, "follow archive-side redirect pages")
	f.StringVar(&flags.fallbackChar, "fallback-char", "", "replacement for characters the OS forbids in paths (default _)")
	f.BoolVar(&flags.noAssets, "no-assets", false, "do not download sub-resources referenced by fetched pages")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "wbmirror <url>",
	Short: "wbmirror archives Wayback Machine snapshots of a URL to local disk.",
	Args:  cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(flags.verbose)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		session, err := wayback.NewSession(wayback.SessionOptions{
			UserAgent:       firstNonEmpty(flags.userAgent, cfg.UserAgent),
			FollowRedirects: flags.followRedirects,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize session", err)
		}

		maxRequests := flags.maxRequests
		if maxRequests == 0 {
			maxRequests = cfg.MaxRequests
		}
		window := flags.window
		if window == 0 && cfg.WindowSeconds > 0 {
			window = time.Duration(cfg.WindowSeconds) * time.Second
		}
		limiter := ratelimit.NewLimiter(maxRequests, window)

		pack, err := mirror.New(ctx, args[0], mirror.Options{
			Timestamps:  flags.timestamps,
			FromDate:    flags.fromDate,
			ToDate:      flags.toDate,
			UniquesOnly: flags.uniquesOnly,
			Collapse:    flags.collapse,
			Session:     session,
			Limiter:     limiter,
		})
		if err != nil {
			serviceutil.Fatal("failed to resolve captures", err)
		}
		if len(pack.Assets) == 0 {
			fmt.Println("no snapshots found")
			return
		}

		directory := firstNonEmpty(flags.directory, cfg.Directory, "wayback")
		fallback := mirror.DefaultFallbackChar
		for _, c := range firstNonEmpty(flags.fallbackChar, cfg.FallbackChar) {
			fallback = c
			break
		}

		err = pack.DownloadTo(ctx, directory, mirror.DownloadOptions{
			Raw:            flags.raw,
			Root:           flags.root,
			IgnoreErrors:   flags.ignoreErrors,
			NoClobber:      flags.noClobber,
			Progress:       flags.progress,
			Delay:          flags.delay,
			FallbackChar:   fallback,
			DownloadAssets: !flags.noAssets,
		})
		if err != nil {
			serviceutil.Fatal("mirror run aborted", err)
		}
	},
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("wbmirror.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

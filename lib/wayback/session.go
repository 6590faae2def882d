package wayback

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"wbmirror/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Response is what the transport collaborator hands back for one request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func (r *Response) ContentType() string {
	if r == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Session is the injected transport layer. An error return means the
// transport could not produce a response at all; non-2xx statuses are
// returned as responses, not errors.
type Session interface {
	Get(ctx context.Context, url string, params map[string]string) (*Response, error)
	FollowRedirects() bool
}

type RestySession struct {
	http            *resty.Client
	followRedirects bool
}

type SessionOptions struct {
	UserAgent       string
	Timeout         time.Duration
	Retries         int
	FollowRedirects bool
}

func NewSession(opts SessionOptions) (*RestySession, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.Retries)
	if !opts.FollowRedirects {
		client.SetRedirectPolicy(resty.NoRedirectPolicy())
	}

	telemetry.InstrumentResty(client, "wayback/http")

	return &RestySession{
		http:            client,
		followRedirects: opts.FollowRedirects,
	}, nil
}

func (s *RestySession) FollowRedirects() bool {
	return s.followRedirects
}

func (s *RestySession) Get(ctx context.Context, url string, params map[string]string) (*Response, error) {
	req := s.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	res, err := req.Get(url)
	if err != nil {
		slog.WarnContext(ctx, "transport failure", "url", url, "err", err)
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode(),
		Headers:    res.Header(),
		Body:       res.Body(),
	}, nil
}

package wayback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchRewrites(t *testing.T) {
	asset, err := NewAsset("example.com", "20200101000000")
	require.NoError(t, err)

	body := "<html><head>" + toolbarBlock + "</head><body>" +
		`<img src="/web/20200101000000im_/https://example.com/a.png">` +
		"</body></html>"
	session := &stubSession{responses: map[string]*Response{
		asset.ArchiveURL(false): htmlResponse(body),
	}}
	fetcher := Fetcher{Session: session, Limiter: testLimiter()}

	content, err := fetcher.Fetch(context.Background(), asset, FetchOptions{})
	require.NoError(t, err)
	require.NotContains(t, string(content), "WAYBACK TOOLBAR")
	require.Contains(t, string(content), `src="https://example.com/a.png"`)
}

func TestFetchRaw(t *testing.T) {
	asset, err := NewAsset("example.com", "20200101000000")
	require.NoError(t, err)

	body := "<html>" + toolbarBlock + "</html>"
	session := &stubSession{responses: map[string]*Response{
		asset.ArchiveURL(true): htmlResponse(body),
	}}
	fetcher := Fetcher{Session: session, Limiter: testLimiter()}

	content, err := fetcher.Fetch(context.Background(), asset, FetchOptions{Raw: true})
	require.NoError(t, err)
	require.Equal(t, body, string(content))
}

func TestFetchTransportFailure(t *testing.T) {
	asset, err := NewAsset("example.com", "20200101000000")
	require.NoError(t, err)

	session := &stubSession{fail: true}
	fetcher := Fetcher{Session: session, Limiter: testLimiter()}

	content, err := fetcher.Fetch(context.Background(), asset, FetchOptions{})
	require.NoError(t, err)
	require.Nil(t, content)
}

func TestFetchFollowsRedirect(t *testing.T) {
	asset, err := NewAsset("example.com", "20200101000000")
	require.NoError(t, err)

	destination := DefaultRoot + "/web/20200101000000/http://example.com/dest"
	session := &stubSession{
		follow: true,
		responses: map[string]*Response{
			asset.ArchiveURL(false): htmlResponse(redirectPage),
			destination:             htmlResponse("<html><body>destination page</body></html>"),
		},
	}
	fetcher := Fetcher{Session: session, Limiter: testLimiter()}

	content, err := fetcher.Fetch(context.Background(), asset, FetchOptions{})
	require.NoError(t, err)
	require.Contains(t, string(content), "destination page")
	require.Equal(t, []string{asset.ArchiveURL(false), destination}, session.requests)
}

func TestFetchLeavesRedirectWhenNotFollowing(t *testing.T) {
	asset, err := NewAsset("example.com", "20200101000000")
	require.NoError(t, err)

	session := &stubSession{responses: map[string]*Response{
		asset.ArchiveURL(false): htmlResponse(redirectPage),
	}}
	fetcher := Fetcher{Session: session, Limiter: testLimiter()}

	content, err := fetcher.Fetch(context.Background(), asset, FetchOptions{})
	require.NoError(t, err)
	require.Len(t, session.requests, 1)
	require.Contains(t, string(content), "Impatient?")
}

package extract

import (
	"context"
	"testing"

	"wbmirror/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestResources(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:extract")
	defer cleanup()

	content := `<html><head>
<link rel="stylesheet" href="/css/site.css">
<link rel="shortcut icon" href="/favicon.ico">
<script src="https://cdn.example.net/lib.js"></script>
<style>
@import url("/css/extra.css");
.hero { background: url('/img/hero.jpg'); }
</style>
</head><body>
<img src="/web/20200101000000im_/https://example.com/a.png">
<img src="//static.example.com/b.png">
<img src="data:image/gif;base64,R0lGOD">
<a href="javascript:void(0)">x</a>
<div style="background-image: url(/img/bg.png)"></div>
<video><source src="/media/clip.mp4"></video>
<iframe src="/embed/frame.html"></iframe>
<img src="/img/bg.png">
</body></html>`

	resources := Resources(context.Background(), []byte(content), "http://example.com/")
	diff := cmp.Diff([]string{
		"http://example.com/css/site.css",
		"https://cdn.example.net/lib.js",
		"https://example.com/a.png",
		"https://static.example.com/b.png",
		"http://example.com/img/bg.png",
		"http://example.com/css/extra.css",
		"http://example.com/img/hero.jpg",
		"http://example.com/media/clip.mp4",
		"http://example.com/favicon.ico",
		"http://example.com/embed/frame.html",
	}, resources)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestResourcesArchivePrefixStripped(t *testing.T) {
	content := `<html><body><img src="/web/20200101000000im_/https://example.com/a.png"></body></html>`
	resources := Resources(context.Background(), []byte(content), "http://example.com/")
	require.Equal(t, []string{"https://example.com/a.png"}, resources)
}

func TestResourcesDeduplicates(t *testing.T) {
	content := `<html><body>
<img src="https://example.com/a.png">
<img src="https://example.com/a.png/">
<img src="https://example.com/a.png">
</body></html>`
	resources := Resources(context.Background(), []byte(content), "http://example.com/")
	require.Equal(t, []string{"https://example.com/a.png"}, resources)
}

func TestResourcesRelativeToPage(t *testing.T) {
	content := `<html><body><img src="images/photo.jpg"></body></html>`
	resources := Resources(context.Background(), []byte(content), "http://example.com/blog/post.html")
	require.Equal(t, []string{"http://example.com/blog/images/photo.jpg"}, resources)
}

func TestResourcesNoMarkup(t *testing.T) {
	resources := Resources(context.Background(), []byte("plain text, nothing to see"), "http://example.com/")
	require.Empty(t, resources)
}

func TestCSSResources(t *testing.T) {
	content := `@import "base.css";
body { background: url('../img/bg.png'); }
.a { background: url(/img/a.png); }
.b { background: url(https://cdn.example.net/b.png); }
.c { background: url(data:image/gif;base64,R0lGOD); }
.d { background: url('/web/20200101000000im_/https://example.com/d.png'); }`

	resources := CSSResources(context.Background(), []byte(content), "http://example.com/css/site.css")
	diff := cmp.Diff([]string{
		"http://example.com/img/bg.png",
		"http://example.com/img/a.png",
		"https://cdn.example.net/b.png",
		"https://example.com/d.png",
		"http://example.com/css/base.css",
	}, resources)
	if diff != "" {
		t.Fatal(diff)
	}
}

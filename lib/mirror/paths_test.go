package mirror

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizePathNeutralizesTraversal(t *testing.T) {
	require.Equal(t,
		filepath.Join("__", "secret", "_", "x"),
		SanitizePath("../secret/./x", '_'),
	)
	require.Equal(t,
		filepath.Join("a", "__", "b"),
		SanitizePath("a/../b", '_'),
	)
}

func TestSanitizePathReplacesInvalidChars(t *testing.T) {
	saved := invalidChars
	invalidChars = `<>:"\|?*`
	defer func() { invalidChars = saved }()

	require.Equal(t, "a_b_c", SanitizePath(`a:b*c`, '_'))
	require.Equal(t, "q-q", SanitizePath(`q?q`, '-'))
}

func TestInvalidCharsFor(t *testing.T) {
	require.Equal(t, `<>:"\|?*`, invalidCharsFor("windows"))
	require.Equal(t, ":", invalidCharsFor("darwin"))
	require.Equal(t, "", invalidCharsFor("linux"))
}

func TestSplitURLPath(t *testing.T) {
	cases := []struct {
		path, head, tail string
	}{
		{"", "", "index.html"},
		{"/", "", "index.html"},
		{"/a/b.html", "/a", "b.html"},
		{"/a/", "/a", "index.html"},
		{"page.html", "", "page.html"},
	}
	for _, c := range cases {
		head, tail := splitURLPath(c.path)
		require.Equal(t, c.head, head, "path %q", c.path)
		require.Equal(t, c.tail, tail, "path %q", c.path)
	}
}

func TestSplitResourcePath(t *testing.T) {
	head, tail := splitResourcePath("/css/site.css")
	require.Equal(t, "/css", head)
	require.Equal(t, "site.css", tail)

	// directory-style resources take the last segment as an html page
	head, tail = splitResourcePath("/about/")
	require.Equal(t, "", head)
	require.Equal(t, "about.html", tail)

	head, tail = splitResourcePath("/")
	require.Equal(t, "", head)
	require.Equal(t, "index.html", tail)
}

func TestLocalPath(t *testing.T) {
	filedir, filename := localPath("out", "20200101000000", "example.com", "/css", "site.css", '_')
	require.Equal(t, filepath.Join("out", "20200101000000", "example.com", "css"), filedir)
	require.Equal(t, filepath.Join(filedir, "site.css"), filename)
}

func TestEnsureExtension(t *testing.T) {
	require.Equal(t, "site.css", ensureExtension("site.css", "https://example.com/site.css"))
	require.Equal(t, "widget.js", ensureExtension("widget", "https://example.com/widget?lang=javascript"))
	require.Equal(t, "photo.jpg", ensureExtension("photo", "https://example.com/photo.jpeg@2x"))
	require.Equal(t, "blob", ensureExtension("blob", "https://example.com/blob"))
}

func TestGuessContentType(t *testing.T) {
	require.Equal(t, "javascript", guessContentType("https://x.com/a.js"))
	require.Equal(t, "css", guessContentType("https://x.com/a.css?v=2"))
	require.Equal(t, "image/png", guessContentType("https://x.com/a.png"))
	require.Equal(t, "unknown", guessContentType("https://x.com/data.bin"))
}

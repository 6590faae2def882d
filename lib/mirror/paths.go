package mirror

import (
	"path/filepath"
	"runtime"
	"strings"
)

const DefaultFallbackChar = '_'

// invalidChars holds the characters the current OS forbids in file names.
var invalidChars = invalidCharsFor(runtime.GOOS)

func invalidCharsFor(goos string) string {
	switch goos {
	case "windows":
		return `<>:"\|?*`
	case "darwin":
		return ":"
	default:
		return ""
	}
}

// SanitizePath maps a URL path onto a safe relative filesystem path.
// OS-forbidden characters are replaced with fallback, and `.`/`..` segments
// are neutralized component-wise so a hostile URL cannot traverse out of
// the mirror directory.
func SanitizePath(path string, fallback rune) string {
	if fallback == 0 {
		fallback = DefaultFallbackChar
	}

	var cleaned strings.Builder
	for _, c := range path {
		if strings.ContainsRune(invalidChars, c) {
			cleaned.WriteRune(fallback)
		} else {
			cleaned.WriteRune(c)
		}
	}

	parts := strings.Split(cleaned.String(), "/")
	for i, part := range parts {
		if part == "." || part == ".." {
			parts[i] = strings.Repeat(string(fallback), len(part))
		}
	}
	return filepath.Join(parts...)
}

// localPath computes where a capture of the given URL parts lands:
// directory/timestamp/host/path/filename. Distinct URLs that sanitize to
// the same path are treated as the same file.
func localPath(directory, timestamp, host, pathHead, filename string, fallback rune) (string, string) {
	filedir := filepath.Join(
		directory,
		timestamp,
		SanitizePath(host, fallback),
		SanitizePath(strings.TrimPrefix(pathHead, "/"), fallback),
	)
	return filedir, filepath.Join(filedir, SanitizePath(filename, fallback))
}

// splitURLPath splits a URL path into its directory part and file name,
// defaulting the name of a directory index.
func splitURLPath(path string) (head, tail string) {
	slash := strings.LastIndex(path, "/")
	if slash >= 0 {
		head, tail = path[:slash], path[slash+1:]
	} else {
		tail = path
	}
	if tail == "" {
		tail = "index.html"
	}
	return head, tail
}

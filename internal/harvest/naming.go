package harvest

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var digitRun = regexp.MustCompile(`\d+`)

const filenameDateLayout = "02012006"

// Stem strips the extension from a filename.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// FilenameFromURL returns the unescaped last path segment of a media URL.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if strings.ContainsAny(base, `/\`) {
		return ""
	}
	return base
}

// DateFromFilename looks for an 8-digit ddmmyyyy run in the filename and
// returns it as YYYY-MM-DD. Runs of other lengths and impossible dates are
// ignored. It returns "" when no date is present.
func DateFromFilename(filename string) string {
	for _, run := range digitRun.FindAllString(filename, -1) {
		if len(run) != len(filenameDateLayout) {
			continue
		}
		t, err := time.Parse(filenameDateLayout, run)
		if err != nil {
			continue
		}
		return t.Format(time.DateOnly)
	}
	return ""
}

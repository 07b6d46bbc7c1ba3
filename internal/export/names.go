package export

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// maxNameLen bounds each sanitised component of a key.
const maxNameLen = 50

// sanitizeName strips a name down to characters that are safe in a storage
// key and truncates it. fallback is used when nothing survives.
func sanitizeName(name, fallback string) string {
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespace.ReplaceAllString(name, " "))
	name = strings.ReplaceAll(name, " ", "-")

	if len(name) > maxNameLen {
		name = strings.TrimRight(name[:maxNameLen], "-")
	}
	if name == "" {
		return fallback
	}
	return name
}

// exportKey builds the deterministic storage key for the index-th image
// (zero based) of an export.
func exportKey(capturedAt time.Time, title string, index int, imageName string) string {
	base := strings.TrimSuffix(imageName, filepath.Ext(imageName))
	return fmt.Sprintf("%d_%s_%02d_%s.jpg",
		capturedAt.Unix(),
		sanitizeName(title, "untitled"),
		index+1,
		sanitizeName(base, "image"),
	)
}

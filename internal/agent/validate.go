package agent

import (
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alex/castmasta/internal/domain"
)

// mediaExtensions are the only local file types stream_file accepts.
var mediaExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".ogg": {},
	".mp4": {}, ".m4a": {}, ".aac": {}, ".m4v": {}, ".mov": {},
}

// imageExtensions are the only file types display_image accepts.
var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".bmp": {}, ".gif": {}, ".webp": {},
}

func validateVolume(volume float64) error {
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		return domain.InvalidArgument("volume must be a finite number")
	}
	if volume < 0.0 || volume > 1.0 {
		return domain.InvalidArgument("volume must be between 0.0 and 1.0, got %v", volume)
	}
	return nil
}

func validateDelta(delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return domain.InvalidArgument("delta must be a finite number")
	}
	if delta <= 0.0 || delta > 1.0 {
		return domain.InvalidArgument("delta must be greater than 0.0 and at most 1.0, got %v", delta)
	}
	return nil
}

func validateMediaURL(mediaURL string) error {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return domain.InvalidArgument("invalid URL: %s", mediaURL)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return domain.InvalidArgument("URL scheme %q not allowed, use http or https", scheme)
	}
	if parsed.Hostname() == "" {
		return domain.InvalidArgument("URL has no host: %s", mediaURL)
	}
	return nil
}

func validateMediaFile(path string) (string, error) {
	return validateLocalFile(path, mediaExtensions, "file", "streaming")
}

func validateImageFile(path string) (string, error) {
	return validateLocalFile(path, imageExtensions, "image", "display")
}

// validateLocalFile rejects symlinks before resolution so a link into
// an otherwise-unreadable location never reaches the serving layer.
func validateLocalFile(path string, allowed map[string]struct{}, kind, use string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", domain.NotFound("%s not found: %s", kind, path)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", domain.InvalidArgument("symlinks are not allowed for %s", use)
	}

	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", domain.NotFound("%s not found: %s", kind, path)
	}
	info, err = os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", domain.NotFound("%s not found: %s", kind, path)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	if _, ok := allowed[ext]; !ok {
		return "", domain.InvalidArgument("unsupported %s type %q, allowed: %s", kind, ext, joinExtensions(allowed))
	}
	return resolved, nil
}

func joinExtensions(allowed map[string]struct{}) string {
	exts := make([]string, 0, len(allowed))
	for ext := range allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

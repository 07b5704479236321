package generation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrRefused means the model replied with a refusal instead of a result.
	ErrRefused = errors.New("model refused the request")
	// ErrNoResult means no usable image reference was found in the reply.
	ErrNoResult = errors.New("no image reference in response")
)

// Refusals are terminal: refunded immediately, never retried.
var refusalPhrases = []string{
	"i can't",
	"i cannot",
	"i'm sorry",
	"i am sorry",
	"i'm unable",
	"i am unable",
	"unable to assist",
	"cannot assist",
	"can't help with",
	"against my",
	"content policy",
	"as an ai",
}

// Placeholder references the model sometimes emits instead of a real result.
// Accepting one would mark a visually empty task as completed.
var placeholderRefs = []string{
	"example.com",
	"example.org",
	"placeholder",
	"your-image",
	"your_image",
	"image_url_here",
	"url_to_image",
	"path/to/",
	"sample.jpg",
	"sample.png",
}

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)
	dataURIRe       = regexp.MustCompile(`data:image/[a-zA-Z]+;base64,[A-Za-z0-9+/=]+`)
	bareURLRe       = regexp.MustCompile(`https?://[^\s)"'<>]+`)
	imageExtRe      = regexp.MustCompile(`(?i)\.(png|jpe?g|webp|gif)(\?[^\s]*)?$`)
)

// ExtractImageRef scans an unstructured model reply for an image reference.
// Refusal phrasing is rejected before any candidate is considered, and
// placeholder/sample references are never accepted.
func ExtractImageRef(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrNoResult
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "", ErrRefused
		}
	}

	candidate := firstCandidate(trimmed)
	if candidate == "" {
		return "", ErrNoResult
	}
	candidateLower := strings.ToLower(candidate)
	for _, p := range placeholderRefs {
		if strings.Contains(candidateLower, p) {
			return "", ErrNoResult
		}
	}
	return candidate, nil
}

// firstCandidate prefers a markdown image link, then an inline data URI,
// then a bare URL that looks like an image.
func firstCandidate(s string) string {
	if m := markdownImageRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := dataURIRe.FindString(s); m != "" {
		return m
	}
	for _, u := range bareURLRe.FindAllString(s, -1) {
		u = strings.TrimRight(u, ".,;:")
		if imageExtRe.MatchString(u) || strings.Contains(strings.ToLower(u), "image") {
			return u
		}
	}
	return ""
}

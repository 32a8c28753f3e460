// Package source normalizes heterogeneous document backends (local files, a
// GitHub repository, a Wiki.js instance) into the uniform Document record
// consumed by the chunker.
package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// supportedExtensions lists the file types worth ingesting.
var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
}

var (
	mdCodeFence  = regexp.MustCompile("(?m)^```[^\n]*$")
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__|\*|_)([^*_]+)(\*\*|__|\*|_)`)
	mdInlineCode = regexp.MustCompile("`([^`]*)`")
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdListMarker = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
)

// convertContent turns raw file content into plain text based on its
// extension. Plain text passes through untouched.
func convertContent(content, extension string) string {
	switch strings.ToLower(extension) {
	case ".md", ".markdown":
		return stripMarkdown(content)
	case ".html", ".htm":
		return htmlToText(content)
	default:
		return content
	}
}

// htmlToText extracts the visible text from an HTML document. On a parse
// failure the raw content is returned as a fallback rather than dropping
// the document.
func htmlToText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

// stripMarkdown simplifies markdown formatting down to plain text. Link and
// image targets are dropped, their labels kept.
func stripMarkdown(content string) string {
	content = mdCodeFence.ReplaceAllString(content, "")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdEmphasis.ReplaceAllString(content, "$2")
	content = mdInlineCode.ReplaceAllString(content, "$1")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdListMarker.ReplaceAllString(content, "")
	return content
}

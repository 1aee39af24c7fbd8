// ABOUTME: Markdown to HTML rendering for model replies shown in the side panel
// ABOUTME: Raw HTML in replies is not passed through

package analysis

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts a markdown reply to HTML. On failure the error is
// returned with whatever was rendered so far.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return buf.String(), err
	}
	return buf.String(), nil
}

package render

import (
	"bytes"

	"github.com/yuin/goldmark"
)

var md = goldmark.New()

// Markdown converts proposal prose to html for display. Raw html in the
// source is dropped by goldmark's default renderer.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Package markup converts landlord-authored listing descriptions into the
// formats platforms accept: sanitized HTML or plain text.
package markup

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Renderer renders markdown descriptions. Safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewRenderer creates a Renderer that allows basic formatting and links
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithHardWraps(),
		),
	)

	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "strong", "em", "b", "i", "del", "ul", "ol", "li", "h3", "h4")
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowStandardURLs()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		md:     md,
		policy: policy,
		strict: bluemonday.StrictPolicy(),
	}
}

// HTML converts markdown to sanitized HTML
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String())), nil
}

// PlainText renders markdown and strips all markup, keeping paragraph breaks
func (r *Renderer) PlainText(markdown string) (string, error) {
	rendered, err := r.HTML(markdown)
	if err != nil {
		return "", err
	}

	replacer := strings.NewReplacer("</p>", "\n\n", "<br>", "\n", "<br/>", "\n", "</li>", "\n")
	text := r.strict.Sanitize(replacer.Replace(rendered))
	text = html.UnescapeString(text)
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
	answerPolicy     *bluemonday.Policy
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Footnote,
				extension.Table,
			),
			// Raw HTML passes through goldmark and is filtered by answerPolicy.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		)
		answerPolicy = bluemonday.UGCPolicy()
	})
	return markdownRenderer
}

// RenderMarkdown converts an answer to sanitized HTML. Scripts, event
// handlers and unsafe URLs are removed.
func RenderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(answerPolicy.SanitizeBytes(buf.Bytes()))
}

// Templates renders the embedded page and fragment templates.
type Templates struct {
	tmpl *template.Template
}

var _ echo.Renderer = (*Templates)(nil)

// NewTemplates parses the embedded templates.
func NewTemplates() (*Templates, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown":    RenderMarkdown,
		"displayTime": domain.DisplayTime,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Templates{tmpl: tmpl}, nil
}

// MustTemplates is NewTemplates that panics on error.
func MustTemplates() *Templates {
	t, err := NewTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Templates) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return t.tmpl.ExecuteTemplate(w, name, data)
}

func (t *Templates) render(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

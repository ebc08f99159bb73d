package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var compilationTemplate = template.Must(
	template.New("compilation.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}).ParseFS(templateFS, "templates/compilation.html"),
)

// TemplateData holds data for compilation template rendering
type TemplateData struct {
	Title        string
	Description  []string
	Tags         []string
	Owner        string
	CompletedAt  time.Time
	Contributors int
	Paragraphs   []string
}

// RenderCompilationHTML renders the compilation template with provided data.
// All text is escaped by html/template.
func RenderCompilationHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := compilationTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// paragraphs splits plain text on blank lines, trimming each block.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	out := make([]string, 0)
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

package export

import (
	"bytes"
	"html/template"
)

var documentTemplate = template.Must(template.New("document").Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	Category    string
	AsOf        string
	Effective   string
	Suffix      string
	Commit      string
	ContentHTML template.HTML
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}} as of {{.AsOf}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #999; padding: 0.25rem 0.5rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{if .Category}}{{.Category}} | {{end}}As of {{.AsOf}} | Effective {{.Effective}}{{if .Suffix}} ({{.Suffix}}){{end}}
    {{if .Commit}}<br><code>{{.Commit}}</code>{{end}}
  </div>
  <div class="content">{{.ContentHTML}}</div>
</body>
</html>`

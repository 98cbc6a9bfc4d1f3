package rfq

import (
	"fmt"
	"html/template"
	"strings"
)

var rfqTmpl = template.Must(template.New("rfq").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Request for quote {{.Number}}</title></head>
<body>
<h1>Request for quote {{.Number}}</h1>
<h2>{{.Title}}</h2>
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .Deadline}}<p>Quotes due by {{.Deadline.Format "2006-01-02"}}</p>{{end}}
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
</body></html>`))

func rfqHTML(r RFQ) string {
	var b strings.Builder
	if err := rfqTmpl.Execute(&b, r); err != nil {
		return fmt.Sprintf("<html><body><h1>Request for quote %s</h1></body></html>", r.Number)
	}
	return b.String()
}

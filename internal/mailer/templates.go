package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/alert"
)

//go:embed templates/*
var templateFS embed.FS

// Renderer renders an alert batch into email bodies.
type Renderer struct {
	html  *htmltemplate.Template
	plain *texttemplate.Template
}

// BatchData contains data for batch template rendering.
type BatchData struct {
	Type          string
	Severity      string
	SeverityColor string
	Count         int
	Alerts        []AlertData
}

// AlertData contains one alert's data for templates.
type AlertData struct {
	Source    string
	Severity  string
	Timestamp string
	Message   string
	Context   map[string]string
}

// severityColors maps severities to the colors used in HTML bodies.
var severityColors = map[alert.Severity]string{
	alert.SeverityLow:      "#2e7d32",
	alert.SeverityMedium:   "#f9a825",
	alert.SeverityHigh:     "#ef6c00",
	alert.SeverityCritical: "#c62828",
}

// NewRenderer loads the embedded batch templates.
func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := htmltemplate.New("batch.html").Funcs(funcs).ParseFS(templateFS, "templates/batch.html")
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	plainTmpl, err := texttemplate.New("batch.txt").Funcs(funcs).ParseFS(templateFS, "templates/batch.txt")
	if err != nil {
		return nil, fmt.Errorf("parse plain template: %w", err)
	}

	return &Renderer{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// Render produces the HTML and plain-text bodies for an alert batch.
func (r *Renderer) Render(alerts []*alert.Alert, typ alert.Type, severity alert.Severity) (html, text string, err error) {
	data := batchToTemplateData(alerts, typ, severity)

	var htmlBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("render HTML body: %w", err)
	}

	var textBuf bytes.Buffer
	if err := r.plain.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("render plain body: %w", err)
	}

	return htmlBuf.String(), textBuf.String(), nil
}

// batchToTemplateData converts an alert batch for template rendering.
func batchToTemplateData(alerts []*alert.Alert, typ alert.Type, severity alert.Severity) *BatchData {
	data := &BatchData{
		Type:          string(typ),
		Severity:      string(severity),
		SeverityColor: severityColors[severity],
		Count:         len(alerts),
	}
	if data.SeverityColor == "" {
		data.SeverityColor = "#555555"
	}

	for _, a := range alerts {
		data.Alerts = append(data.Alerts, AlertData{
			Source:    a.Source,
			Severity:  string(a.Severity),
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
			Message:   a.Message,
			Context:   a.Context,
		})
	}
	return data
}

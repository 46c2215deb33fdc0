package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"go.uber.org/zap"
)

//go:embed default/*.tmpl
var defaultTemplates embed.FS

// Renderer рендерит текст уведомлений по шаблонам.
// По умолчанию используются встроенные шаблоны; templatesDir
// позволяет подменить их своими файлами с теми же именами.
type Renderer struct {
	logger           *zap.Logger
	firingTemplate   *template.Template
	resolvedTemplate *template.Template
}

// NewRenderer создаёт renderer. Пустой templatesDir = встроенные шаблоны.
func NewRenderer(logger *zap.Logger, templatesDir string) (*Renderer, error) {
	var firingTemplate, resolvedTemplate *template.Template
	var err error

	if templatesDir == "" {
		firingTemplate, err = template.ParseFS(defaultTemplates, "default/alert_firing.tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded firing template: %w", err)
		}
		resolvedTemplate, err = template.ParseFS(defaultTemplates, "default/alert_resolved.tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded resolved template: %w", err)
		}
	} else {
		firingTemplate, err = template.ParseFiles(templatesDir + "/alert_firing.tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse firing template: %w", err)
		}
		resolvedTemplate, err = template.ParseFiles(templatesDir + "/alert_resolved.tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse resolved template: %w", err)
		}
	}

	return &Renderer{
		logger:           logger,
		firingTemplate:   firingTemplate,
		resolvedTemplate: resolvedTemplate,
	}, nil
}

// RenderFiring рендерит текст уведомления о сработавшем алерте
func (r *Renderer) RenderFiring(data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.firingTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render firing template: %w", err)
	}
	return buf.String(), nil
}

// RenderResolved рендерит текст уведомления о разрешённом алерте
func (r *Renderer) RenderResolved(data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.resolvedTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render resolved template: %w", err)
	}
	return buf.String(), nil
}

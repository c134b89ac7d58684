package services

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"hyperbuild-web/internal/domain/models"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTemplate is returned when a classifier answer is not a known label.
var ErrUnknownTemplate = errors.New("unknown template")

//go:embed templates/prompts.yaml
var promptsYAML []byte

// PromptLibrary holds the system prompt, the classifier instruction and the
// starter artifacts for each project template.
type PromptLibrary struct {
	System         string                          `yaml:"system"`
	Base           string                          `yaml:"base"`
	Classifier     string                          `yaml:"classifier"`
	ProjectContext string                          `yaml:"project_context"`
	Templates      map[models.TemplateLabel]string `yaml:"templates"`
}

// LoadPromptLibrary parses the embedded prompt definitions.
func LoadPromptLibrary() (*PromptLibrary, error) {
	return ParsePromptLibrary(promptsYAML)
}

// ParsePromptLibrary parses prompt definitions from YAML.
func ParsePromptLibrary(data []byte) (*PromptLibrary, error) {
	lib := &PromptLibrary{}
	if err := yaml.Unmarshal(data, lib); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if lib.System == "" || lib.Classifier == "" {
		return nil, errors.New("parse prompts: system and classifier prompts are required")
	}
	return lib, nil
}

// SystemPrompt returns the implicit system prompt sent with every chat.
func (l *PromptLibrary) SystemPrompt() string {
	return l.System
}

// ClassifierPrompt returns the instruction that asks for a template label.
func (l *PromptLibrary) ClassifierPrompt() string {
	return l.Classifier
}

// ParseLabel maps a classifier answer to a template label.
func (l *PromptLibrary) ParseLabel(answer string) (models.TemplateLabel, error) {
	label := models.TemplateLabel(strings.ToLower(strings.TrimSpace(answer)))
	if _, ok := l.Templates[label]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, answer)
	}
	return label, nil
}

// Bundle returns the starter prompts for label. React projects also get the
// base design guidance ahead of the project context.
func (l *PromptLibrary) Bundle(label models.TemplateLabel) (models.PromptBundle, error) {
	starter, ok := l.Templates[label]
	if !ok {
		return models.PromptBundle{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, label)
	}

	context := fmt.Sprintf(l.ProjectContext, starter)
	bundle := models.PromptBundle{
		Prompts:   []string{context},
		UIPrompts: []string{starter},
	}
	if label == models.TemplateReact && l.Base != "" {
		bundle.Prompts = []string{l.Base, context}
	}
	return bundle, nil
}

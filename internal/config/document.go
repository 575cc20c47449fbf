package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Document holds per-flow defaults read from dialx.yaml. Command-line flags
// override any value set here.
type Document struct {
	// Model is used by flows that do not name their own.
	Model    string         `yaml:"model"`
	Timeout  Duration       `yaml:"timeout"`
	Inline   InlineConfig   `yaml:"inline"`
	Attach   AttachConfig   `yaml:"attach"`
	Generate GenerateConfig `yaml:"generate"`
}

type InlineConfig struct {
	Model       string `yaml:"model"`
	Image       string `yaml:"image"`
	Prompt      string `yaml:"prompt"`
	FallbackURL string `yaml:"fallback_url"`
}

type AttachConfig struct {
	Model    string   `yaml:"model"`
	Files    []string `yaml:"files"`
	MimeType string   `yaml:"mime_type"`
}

type GenerateConfig struct {
	Model     string `yaml:"model"`
	Prompt    string `yaml:"prompt"`
	Size      string `yaml:"size"`
	Quality   string `yaml:"quality"`
	Style     string `yaml:"style"`
	OutputDir string `yaml:"output_dir"`
	Schedule  string `yaml:"schedule"`
	Timezone  string `yaml:"timezone"`
}

// DefaultDocument mirrors the deployments each flow was built against. model
// is the fallback for flows without their own deployment (DIAL_MODEL); empty
// means DefaultModel.
func DefaultDocument(model string) *Document {
	if model == "" {
		model = DefaultModel
	}
	return &Document{
		Model: model,
		Inline: InlineConfig{
			Model:  "gpt-4o",
			Image:  "dialx-banner.png",
			Prompt: "What do you see on this picture?",
		},
		Attach: AttachConfig{
			Files: []string{"dialx-banner.png"},
		},
		Generate: GenerateConfig{
			Model:     "dall-e-3",
			Prompt:    "Sunny day on Bali",
			Size:      "1024x1024",
			Quality:   "hd",
			Style:     "vivid",
			OutputDir: ".",
		},
	}
}

// LoadDocument reads path over DefaultDocument(model). A missing file yields
// the defaults unchanged.
func LoadDocument(path, model string) (*Document, error) {
	doc := DefaultDocument(model)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse dialx document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dialx document: %w", err)
	}
	return doc, nil
}

// ModelFor returns the flow model, falling back to the document model.
func (d *Document) ModelFor(flowModel string) string {
	if flowModel != "" {
		return flowModel
	}
	return d.Model
}

func (d *Document) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Model, validation.Required),
		validation.Field(&d.Timeout, validation.Min(Duration(0))),
		validation.Field(&d.Attach),
		validation.Field(&d.Generate),
	)
}

func (c AttachConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Files, validation.Each(validation.Required)),
	)
}

// Validate checks the schedule fields only. Generation parameters are
// checked by the generation flow itself.
func (c GenerateConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timezone, validation.By(validTimezone)),
		validation.Field(&c.Schedule, validation.When(c.Timezone != "", validation.Required.Error("is required when timezone is set"))),
	)
}

func validTimezone(value interface{}) error {
	tz, _ := value.(string)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	return nil
}

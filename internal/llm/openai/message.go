// Package openai models OpenAI-style multi-part ("contented") messages, whose
// content is a list of typed image and text parts.
package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"

	"github.com/bakkerme/dialx/internal/llm"
)

type ContentType string

const (
	ContentTypeImage ContentType = "image_url"
	ContentTypeText  ContentType = "text"
)

// Part is one content part. Exactly one of OfText / OfImageURL is set by the
// constructors below; the "type" discriminator is written on marshal.
type Part = openai.ChatCompletionContentPartUnionParam

func ImagePart(url string) Part {
	return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url})
}

func TextPart(text string) Part {
	return openai.TextContentPart(text)
}

// PartType reports the discriminator of p, or false for variants this package does not build.
func PartType(p Part) (ContentType, bool) {
	switch {
	case p.OfText != nil:
		return ContentTypeText, true
	case p.OfImageURL != nil:
		return ContentTypeImage, true
	default:
		return "", false
	}
}

type ContentedMessage struct {
	Role    llm.Role
	Content []Part
}

func (m ContentedMessage) MarshalJSON() ([]byte, error) {
	content := m.Content
	if content == nil {
		content = []Part{}
	}
	return json.Marshal(struct {
		Role    llm.Role `json:"role"`
		Content []Part   `json:"content"`
	}{Role: m.Role, Content: content})
}

func (m ContentedMessage) ToMap() (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal contented message: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal contented message: %w", err)
	}
	return out, nil
}

// Flatten collapses m into a plain text message. Text parts are copied as-is
// and image parts become "[Image: <url>] " markers, so image data is only
// carried as text.
func Flatten(m ContentedMessage) llm.Message {
	var b strings.Builder
	for _, part := range m.Content {
		switch {
		case part.OfText != nil:
			b.WriteString(part.OfText.Text)
		case part.OfImageURL != nil:
			fmt.Fprintf(&b, "[Image: %s] ", part.OfImageURL.ImageURL.URL)
		}
	}
	return llm.Message{Role: m.Role, Content: b.String()}
}

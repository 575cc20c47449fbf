package llm

// Attachment references a binary payload associated with a message, either
// inline (Data) or by URL. Every field is optional; nil is serialized as null.
type Attachment struct {
	Title *string `json:"title"`
	Data  *string `json:"data"`
	Type  *string `json:"type"`
	URL   *string `json:"url"`
}

var attachmentKeys = []string{"title", "data", "type", "url"}

func (a Attachment) ToMap() map[string]any {
	return map[string]any{
		"title": optionalValue(a.Title),
		"data":  optionalValue(a.Data),
		"type":  optionalValue(a.Type),
		"url":   optionalValue(a.URL),
	}
}

// attachmentFromMap keeps only the recognized keys. Values that are not strings are ignored.
func attachmentFromMap(data map[string]any) Attachment {
	var a Attachment
	for _, key := range attachmentKeys {
		s, ok := data[key].(string)
		if !ok {
			continue
		}
		switch key {
		case "title":
			a.Title = String(s)
		case "data":
			a.Data = String(s)
		case "type":
			a.Type = String(s)
		case "url":
			a.URL = String(s)
		}
	}
	return a
}

type CustomContent struct {
	Attachments []Attachment `json:"attachments"`
}

func (c CustomContent) ToMap() map[string]any {
	attachments := make([]any, 0, len(c.Attachments))
	for _, attachment := range c.Attachments {
		attachments = append(attachments, attachment.ToMap())
	}
	return map[string]any{"attachments": attachments}
}

// CustomContentFromMap never fails: a missing or non-list "attachments" value
// yields no attachments, and list elements that are not objects are skipped.
func CustomContentFromMap(data map[string]any) CustomContent {
	raw, ok := data["attachments"].([]any)
	if !ok {
		return CustomContent{Attachments: []Attachment{}}
	}
	attachments := make([]Attachment, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		attachments = append(attachments, attachmentFromMap(fields))
	}
	return CustomContent{Attachments: attachments}
}

// String returns a pointer to s, for building optional attachment fields.
func String(s string) *string {
	return &s
}

func optionalValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

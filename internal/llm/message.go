package llm

import (
	"encoding/json"
	"fmt"
)

type Message struct {
	Role          Role
	Content       string
	CustomContent *CustomContent
}

// ToMap returns the wire form of the message. The custom_content key is only
// present when CustomContent is set; it is never written as null.
func (m Message) ToMap() map[string]any {
	out := map[string]any{
		"role":    m.Role.String(),
		"content": m.Content,
	}
	if m.CustomContent != nil {
		out["custom_content"] = m.CustomContent.ToMap()
	}
	return out
}

// MessageFromMap builds a Message from its wire form. The role is required
// and validated; content defaults to the empty string; custom_content is
// only parsed when it is a non-empty object.
func MessageFromMap(data map[string]any) (Message, error) {
	rawRole, ok := data["role"]
	if !ok {
		return Message{}, fmt.Errorf("%w: role is required", ErrInvalidRole)
	}
	roleName, ok := rawRole.(string)
	if !ok {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidRole, rawRole)
	}
	role, err := ParseRole(roleName)
	if err != nil {
		return Message{}, err
	}

	msg := Message{Role: role}
	switch content := data["content"].(type) {
	case nil:
	case string:
		msg.Content = content
	default:
		return Message{}, fmt.Errorf("message content must be a string, got %T", content)
	}

	switch custom := data["custom_content"].(type) {
	case nil:
	case map[string]any:
		if len(custom) > 0 {
			parsed := CustomContentFromMap(custom)
			msg.CustomContent = &parsed
		}
	default:
		return Message{}, fmt.Errorf("message custom_content must be an object, got %T", custom)
	}
	return msg, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := MessageFromMap(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Attachments returns the message attachments, or nil when there is no custom content.
func (m Message) Attachments() []Attachment {
	if m.CustomContent == nil {
		return nil
	}
	return m.CustomContent.Attachments
}

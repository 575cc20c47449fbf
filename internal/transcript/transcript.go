// Package transcript renders a conversation as Markdown or HTML.
package transcript

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/bakkerme/dialx/internal/llm"
)

var dataURLPattern = regexp.MustCompile(`data:([\w.+-]+/[\w.+-]+);base64,([A-Za-z0-9+/=]+)`)

// Markdown renders conv with one section per message. Inline base64 payloads
// are abbreviated to their size.
func Markdown(conv *llm.Conversation) string {
	if conv == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n", conv.ID)
	for _, msg := range conv.Messages() {
		fmt.Fprintf(&b, "\n### %s\n\n", msg.Role)
		if content := strings.TrimSpace(abbreviateDataURLs(msg.Content)); content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
		attachments := msg.Attachments()
		if len(attachments) == 0 {
			continue
		}
		b.WriteString("\nAttachments:\n\n")
		for _, a := range attachments {
			b.WriteString("- ")
			b.WriteString(attachmentLine(a))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// HTML renders the Markdown transcript with GitHub-flavoured extensions.
func HTML(conv *llm.Conversation) (string, error) {
	var buf bytes.Buffer
	if err := newMarkdownConverter().Convert([]byte(Markdown(conv)), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.String(), nil
}

// Save writes HTML for .html and .htm paths and Markdown otherwise.
func Save(path string, conv *llm.Conversation) error {
	var out string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		html, err := HTML(conv)
		if err != nil {
			return err
		}
		out = html
	default:
		out = Markdown(conv)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create transcript dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func attachmentLine(a llm.Attachment) string {
	title := deref(a.Title)
	if title == "" {
		title = "attachment"
	}
	line := title
	if url := deref(a.URL); url != "" {
		line = fmt.Sprintf("[%s](%s)", escapeLinkText(title), url)
	}
	var details []string
	if t := deref(a.Type); t != "" {
		details = append(details, t)
	}
	if data := deref(a.Data); data != "" {
		details = append(details, fmt.Sprintf("%d bytes inline", len(data)))
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

func abbreviateDataURLs(s string) string {
	return dataURLPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := dataURLPattern.FindStringSubmatch(match)
		return fmt.Sprintf("data:%s;base64,<%d chars>", parts[1], len(parts[2]))
	})
}

var linkTextEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newMarkdownConverter() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

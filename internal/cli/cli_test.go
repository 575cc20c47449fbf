package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bakkerme/dialx/internal/bucket"
	bucketmock "github.com/bakkerme/dialx/internal/bucket/mock"
	"github.com/bakkerme/dialx/internal/config"
	"github.com/bakkerme/dialx/internal/llm"
	llmmock "github.com/bakkerme/dialx/internal/llm/mock"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type harness struct {
	app    *app
	model  *llmmock.Client
	store  *bucketmock.Store
	models []string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T, replies ...llm.Message) *harness {
	t.Helper()
	h := &harness{
		model: &llmmock.Client{Responses: replies},
		store: &bucketmock.Store{Bucket: "bkt"},
	}
	env := config.EnvConfig{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		Dial:       config.DialEnvConfig{APIKey: "test-key", DefaultImageURL: "https://example.com/fallback.jpg"},
	}
	h.app = &app{
		loadEnv: func() config.EnvConfig { return env },
		newModel: func(a *app, model string) (llm.Client, error) {
			h.models = append(h.models, model)
			return h.model, nil
		},
		newStore: func(a *app) bucket.Sessioner { return h.store },
	}
	return h
}

func (h *harness) run(args ...string) error {
	root := h.app.rootCmd()
	root.SetArgs(args)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	return root.ExecuteContext(context.Background())
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestInlineCommand(t *testing.T) {
	dir := t.TempDir()
	image := writePNG(t, dir, "banner.png")
	out := filepath.Join(dir, "run.md")
	h := newHarness(t, llm.Message{Role: llm.RoleAssistant, Content: "A DIAL banner"})

	if err := h.run("inline", "--transcript", out, image); err != nil {
		t.Fatalf("inline error = %v\n%s", err, h.stderr.String())
	}
	if got := strings.TrimSpace(h.stdout.String()); got != "A DIAL banner" {
		t.Fatalf("stdout = %q", got)
	}
	if len(h.models) != 1 || h.models[0] != "gpt-4o" {
		t.Fatalf("models = %v, want [gpt-4o]", h.models)
	}
	data, err := os.ReadFile(out)
	if err != nil || !strings.Contains(string(data), "A DIAL banner") {
		t.Fatalf("transcript = %q, %v", data, err)
	}
}

func TestInlineCommand_ReturnsFlowErrors(t *testing.T) {
	h := newHarness(t)
	h.model.Err = errors.New("HTTP 401: unauthorized")

	err := h.run("inline", writePNG(t, t.TempDir(), "banner.png"))
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("inline error = %v, want 401", err)
	}
}

func TestAttachCommand(t *testing.T) {
	dir := t.TempDir()
	first := writePNG(t, dir, "a.png")
	second := writePNG(t, dir, "b.png")
	h := newHarness(t, llm.Message{Role: llm.RoleAssistant, Content: "Two images"})

	if err := h.run("attach", "--model", "gpt-4o", first, second); err != nil {
		t.Fatalf("attach error = %v", err)
	}
	if h.models[0] != "gpt-4o" {
		t.Fatalf("model = %q, want gpt-4o", h.models[0])
	}
	if h.store.Sessions != 2 || len(h.store.Uploads) != 2 {
		t.Fatalf("sessions = %d, uploads = %d", h.store.Sessions, len(h.store.Uploads))
	}
	if got := h.stdout.String(); !strings.Contains(got, "Model gpt-4o: Two images") {
		t.Fatalf("stdout = %q", got)
	}
}

func TestAttachCommand_UsesDialModelEnv(t *testing.T) {
	h := newHarness(t)
	env := h.app.loadEnv()
	env.Dial.Model = "my-env-model"
	h.app.loadEnv = func() config.EnvConfig { return env }

	if err := h.run("attach", writePNG(t, t.TempDir(), "a.png")); err != nil {
		t.Fatalf("attach error = %v", err)
	}
	if len(h.models) != 1 || h.models[0] != "my-env-model" {
		t.Fatalf("models = %v, want [my-env-model]", h.models)
	}
}

func TestGenerateCommand_SavesImages(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, llm.Message{
		Role: llm.RoleAssistant,
		CustomContent: &llm.CustomContent{Attachments: []llm.Attachment{
			{URL: llm.String("files/bkt/img.png")},
		}},
	})
	h.store.Files = map[string][]byte{"files/bkt/img.png": pngBytes}

	if err := h.run("generate", "--output-dir", dir, "--size", "1024x1792", "A lighthouse"); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if h.models[0] != "dall-e-3" {
		t.Fatalf("model = %q, want dall-e-3", h.models[0])
	}
	call := h.model.Calls[0]
	if call.Messages[0].Content != "A lighthouse" || call.CustomFields["size"] != "1024x1792" || call.CustomFields["quality"] != "hd" {
		t.Fatalf("unexpected request: %+v", call)
	}
	if !strings.Contains(h.stdout.String(), "Image saved locally as "+filepath.Join(dir, "generated_image_")) {
		t.Fatalf("stdout = %q", h.stdout.String())
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "generated_image_*.png"))
	if len(matches) != 1 {
		t.Fatalf("saved files = %v", matches)
	}
}

func TestGenerateCommand_LogsFailures(t *testing.T) {
	h := newHarness(t)
	h.model.Err = errors.New("service down")

	if err := h.run("generate", "--output-dir", t.TempDir()); err != nil {
		t.Fatalf("generate should not fail, got %v", err)
	}
	if !strings.Contains(h.stderr.String(), "service down") {
		t.Fatalf("failure not logged: %q", h.stderr.String())
	}
}

func TestGenerateCommand_InvalidParametersAreLogged(t *testing.T) {
	h := newHarness(t)
	if err := h.run("generate", "--quality", "ultra"); err != nil {
		t.Fatalf("generate should not fail, got %v", err)
	}
	if len(h.model.Calls) != 0 {
		t.Fatalf("model called with invalid parameters")
	}
	if !strings.Contains(h.stderr.String(), "error during image generation") {
		t.Fatalf("validation failure not logged: %q", h.stderr.String())
	}
}

func TestDocumentDefaultsApply(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "dialx.yaml")
	image := writePNG(t, dir, "doc.png")
	body := "model: team-default\ninline:\n  model: \"\"\n  image: " + image + "\n  prompt: From the document\n"
	if err := os.WriteFile(docPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	h := newHarness(t)

	if err := h.run("inline", "--config", docPath); err != nil {
		t.Fatalf("inline error = %v", err)
	}
	if h.models[0] != "team-default" {
		t.Fatalf("model = %q, want team-default", h.models[0])
	}
	if got := h.model.Calls[0].Messages[0].Content; !strings.HasSuffix(got, "] From the document") {
		t.Fatalf("content = %q", got)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false, "warn").Info("hidden")
	newLogger(&buf, true, "warn").Debug("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("log output = %q", buf.String())
	}
}

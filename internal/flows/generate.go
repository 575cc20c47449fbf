package flows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/bakkerme/dialx/internal/bucket"
	"github.com/bakkerme/dialx/internal/llm"
)

type Size string

const (
	SizeSquare    Size = "1024x1024"
	SizePortrait  Size = "1024x1792"
	SizeLandscape Size = "1792x1024"
)

type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
)

type Style string

const (
	StyleNatural Style = "natural"
	StyleVivid   Style = "vivid"
)

const (
	DefaultGenerationPrompt = "Sunny day on Bali"
	generatedImagePrefix    = "generated_image_"
	generatedTimeLayout     = "20060102_150405"
)

type GenerationInput struct {
	// Prompt defaults to DefaultGenerationPrompt.
	Prompt  string
	Size    Size
	Quality Quality
	Style   Style
	// OutputDir receives downloaded images; defaults to the working directory.
	OutputDir string
	// Now is used for file names; defaults to time.Now.
	Now func() time.Time
}

// WithDefaults fills empty fields with a square, hd, vivid image of the default prompt.
func (in GenerationInput) WithDefaults() GenerationInput {
	if in.Prompt == "" {
		in.Prompt = DefaultGenerationPrompt
	}
	if in.Size == "" {
		in.Size = SizeSquare
	}
	if in.Quality == "" {
		in.Quality = QualityHD
	}
	if in.Style == "" {
		in.Style = StyleVivid
	}
	if in.OutputDir == "" {
		in.OutputDir = "."
	}
	if in.Now == nil {
		in.Now = time.Now
	}
	return in
}

func (in GenerationInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Prompt, validation.Required),
		validation.Field(&in.Size, validation.Required, validation.In(SizeSquare, SizePortrait, SizeLandscape)),
		validation.Field(&in.Quality, validation.Required, validation.In(QualityStandard, QualityHD)),
		validation.Field(&in.Style, validation.Required, validation.In(StyleNatural, StyleVivid)),
	)
}

// CustomFields returns the generation parameters in request form.
func (in GenerationInput) CustomFields() map[string]any {
	return map[string]any{
		"size":    string(in.Size),
		"quality": string(in.Quality),
		"style":   string(in.Style),
	}
}

type GenerationResult struct {
	Result
	// Files are the local paths written, in attachment order.
	Files []string
}

// Generate asks the model for an image and downloads every returned attachment
// that carries a url. A reply without attachments is not an error.
func Generate(ctx context.Context, client llm.Client, store bucket.Sessioner, in GenerationInput) (GenerationResult, error) {
	if err := requireClient(client); err != nil {
		return GenerationResult{}, err
	}
	in = in.WithDefaults()
	if err := in.Validate(); err != nil {
		return GenerationResult{}, fmt.Errorf("generate: invalid input: %w", err)
	}

	ctx, conv, logger := start(ctx, FlowGenerate)
	conv.AddMessage(llm.Message{Role: llm.RoleUser, Content: in.Prompt})

	reply, err := complete(ctx, client, conv, in.CustomFields())
	if err != nil {
		return GenerationResult{}, fmt.Errorf("generate: %w", err)
	}
	result := GenerationResult{Result: Result{Reply: reply, Conversation: conv}}

	attachments := reply.Attachments()
	if len(attachments) == 0 {
		logger.Info("no attachments found in the response")
		return result, nil
	}
	if store == nil {
		return result, fmt.Errorf("generate: bucket store is required to download %d attachments", len(attachments))
	}

	err = store.Session(ctx, func(ctx context.Context, files bucket.Files) error {
		for _, attachment := range attachments {
			if attachment.URL == nil || *attachment.URL == "" {
				continue
			}
			data, err := files.GetFile(ctx, *attachment.URL)
			if err != nil {
				return err
			}
			path, err := saveImage(in.OutputDir, in.Now(), data)
			if err != nil {
				return err
			}
			logger.Info("image saved locally", "path", path, "bytes", len(data))
			result.Files = append(result.Files, path)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("generate: %w", err)
	}
	logger.Info("image generation completed", "files", len(result.Files))
	return result, nil
}

// saveImage writes data as generated_image_<timestamp>.png, adding a numeric
// suffix when a file of that name already exists.
func saveImage(dir string, now time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	stem := generatedImagePrefix + now.Format(generatedTimeLayout)
	for n := 0; ; n++ {
		name := stem + ".png"
		if n > 0 {
			name = stem + "_" + strconv.Itoa(n) + ".png"
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	ConfigPath string
	LogLevel   string
	Dial       DialEnvConfig
	OTel       OTelEnvConfig
}

type DialEnvConfig struct {
	APIKey string
	URL    string
	// ChatCompletionsEndpoint contains a {model} placeholder.
	ChatCompletionsEndpoint string
	Model                   string
	DefaultImageURL         string
	// HTTPTimeout of zero leaves requests bounded only by the transport.
	HTTPTimeout time.Duration
	OTel        DialOTelEnvConfig
}

type DialOTelEnvConfig struct {
	Enabled       bool
	CaptureBodies bool
	MaxBodyBytes  int
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

const (
	DefaultDialURL         = "https://ai-proxy.lab.epam.com"
	DefaultModel           = "anthropic.claude-v3-haiku"
	DefaultImageURL        = "https://a-z-animals.com/media/2019/11/Elephant-male-1024x535.jpg"
	chatCompletionsPathFmt = "%s/openai/deployments/{model}/chat/completions"
)

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	dialURL := strings.TrimRight(envString("DIAL_URL", DefaultDialURL), "/")
	endpoint := envString("DIAL_CHAT_COMPLETIONS_ENDPOINT", fmt.Sprintf(chatCompletionsPathFmt, dialURL))

	return EnvConfig{
		ConfigPath: envString("DIALX_CONFIG", "dialx.yaml"),
		LogLevel:   strings.ToLower(envString("LOG_LEVEL", "info")),
		Dial: DialEnvConfig{
			APIKey:                  strings.TrimSpace(os.Getenv("DIAL_API_KEY")),
			URL:                     dialURL,
			ChatCompletionsEndpoint: endpoint,
			Model:                   envString("DIAL_MODEL", DefaultModel),
			DefaultImageURL:         envString("DIAL_DEFAULT_IMAGE_URL", DefaultImageURL),
			HTTPTimeout:             max(envDuration("DIAL_HTTP_TIMEOUT", 0), 0),
			OTel: DialOTelEnvConfig{
				Enabled:       envBool("OTEL_DIAL_ENABLED", true),
				CaptureBodies: envBool("OTEL_CAPTURE_DIAL_BODIES", false),
				MaxBodyBytes:  envInt("OTEL_DIAL_MAX_BODY_BYTES", 64*1024),
			},
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: strings.TrimSpace(envString("OTEL_SERVICE_NAME", "dialx")),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := parseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}

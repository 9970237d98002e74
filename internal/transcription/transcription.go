package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/types"
)

const mockTranscript = "Hi this is John, my number is 987-654-3210, billing issue, need refund for order 123."

var supportedFormats = map[string]string{
	"mp3": "audio/mpeg",
	"wav": "audio/wav",
	"m4a": "audio/mp4",
	"ogg": "audio/ogg",
}

// SupportedFormats lists the accepted audio extensions.
func SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "ogg"}
}

// NormalizeFormat lowercases f and drops a leading dot. It fails with
// ErrUnsupportedFormat for anything outside the supported set.
func NormalizeFormat(f string) (string, error) {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if _, ok := supportedFormats[f]; !ok {
		return "", fmt.Errorf("%w: %q (want one of %s)", types.ErrUnsupportedFormat, f, strings.Join(SupportedFormats(), ", "))
	}
	return f, nil
}

// FormatFromFilename derives the audio format from a file extension.
func FormatFromFilename(name string) (string, error) {
	return NormalizeFormat(filepath.Ext(name))
}

type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Retries is the number of extra attempts on transport errors and 5xx.
	Retries int
	Mock    bool
}

// Client talks to an OpenAI-compatible /audio/transcriptions endpoint.
type Client struct {
	cfg  Config
	http *resty.Client
	log  *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "text/plain, application/json")
	if cfg.APIKey != "" {
		hc.SetAuthToken(cfg.APIKey)
	}
	return &Client{cfg: cfg, http: hc, log: log.Component("transcription")}
}

// Transcribe converts audio to text. It never returns a partial transcript:
// either the full text comes back or an error wrapping ErrTranscriptionFailed
// (or ErrUnsupportedFormat for a bad format).
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", types.ErrTranscriptionFailed)
	}

	log := c.log.WithField("format", format).WithField("bytes", len(audio))
	if c.cfg.Mock {
		log.Info("mock transcription mode on")
		return mockTranscript, nil
	}
	if c.cfg.URL == "" {
		return "", fmt.Errorf("%w: TRANSCRIBE_URL not set", types.ErrTranscriptionFailed)
	}

	start := time.Now()
	log.Info("starting transcription")

	var text string
	op := func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetMultipartField("file", "call."+format, supportedFormats[format], bytes.NewReader(audio)).
			SetFormData(map[string]string{
				"model":           c.cfg.Model,
				"response_format": "text",
				"temperature":     "0",
			}).
			Post(c.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			log.WithError(err).Warn("transcription request failed")
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("server error: http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		}
		if resp.IsError() {
			return backoff.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())))
		}
		text = parseTranscript(resp.Body())
		return nil
	}

	var b backoff.BackOff = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.Retries))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", types.ErrTranscriptionFailed, errors.New("empty transcript"))
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("chars", len(text)).
		Info("transcription complete")
	return strings.TrimSpace(text), nil
}

// parseTranscript accepts either a plain text body or a {"text": "..."} object.
func parseTranscript(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(trimmed, &payload); err == nil {
			return payload.Text
		}
	}
	return string(trimmed)
}

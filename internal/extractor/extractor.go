package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/types"
)

const systemPrompt = `You are an AI assistant that extracts structured information from call transcripts for a reception/call-center scenario. Always respond with a valid JSON object only, with no extra text.

The JSON must have these keys:
- caller_name (string or empty)
- phone (string, digits only if possible, or empty)
- department (string like 'Support', 'Sales', 'Billing', etc.)
- priority (one of: Low, Medium, High)
- summary (1-2 sentence summary of the call)
- response (a short suggested response for the receptionist)
`

// BuildPrompt returns the user message carrying the transcript.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf("Here is the call transcript:\n\n%s\n\nExtract the fields as JSON.", transcript)
}

type Config struct {
	URL          string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetryTime time.Duration
	Mock         bool
}

// Client calls an OpenAI-compatible chat completions endpoint and pulls the
// first JSON object out of the reply.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 45 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Component("extractor"),
	}
}

// Extract returns the untrusted fields found in the model reply. Individual
// keys may be missing or malformed; only a failed call or a reply without a
// decodable JSON object is an error (wrapping ErrExtractionFailed).
func (c *Client) Extract(ctx context.Context, transcript string) (types.RawFields, error) {
	if c.cfg.Mock {
		c.log.Info("mock LLM mode ON - returning deterministic fields")
		return mockFields(), nil
	}
	if c.cfg.URL == "" || c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: llm gateway not configured", types.ErrExtractionFailed)
	}

	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": BuildPrompt(transcript)},
		},
		"temperature": 0.2,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", types.ErrExtractionFailed, err)
	}
	c.log.WithField("payload_len", len(data)).Debug("llm request prepared")

	var (
		fields  types.RawFields
		lastErr error
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("read llm response: %w", err)
			if ctx.Err() != nil {
				return backoff.Permanent(lastErr)
			}
			c.log.WithError(err).Warn("llm response read failed")
			return lastErr
		}
		c.log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("http %d", resp.StatusCode)
			return lastErr
		}

		if inner := extractContentFromChoices(body); inner != "" {
			if parsed, err := decodeFields(inner); err == nil {
				fields, lastErr = parsed, nil
				return nil
			}
			c.log.Warn("decode from choices content failed")
		}
		if fallback := extractJSON(string(body)); fallback != "" {
			if parsed, err := decodeFields(fallback); err == nil && !isEnvelope(parsed) {
				fields, lastErr = parsed, nil
				return nil
			}
		}

		// A reply without usable JSON is an answer, not a transport fault.
		lastErr = errors.New("no JSON found in LLM output")
		return backoff.Permanent(lastErr)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrExtractionFailed, lastErr)
	}

	c.log.WithField("keys", len(fields)).Info("parsed extraction fields")
	return fields, nil
}

// decodeFields decodes a JSON object keeping numbers as json.Number so phone
// numbers do not pass through float64.
func decodeFields(s string) (types.RawFields, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("not a JSON object")
	}
	return types.RawFields(fields), nil
}

// isEnvelope reports whether a decoded object is the completion wrapper itself
// rather than the model's answer.
func isEnvelope(f types.RawFields) bool {
	_, ok := f["choices"]
	return ok
}

// extractContentFromChoices reads choices[0].message.content and returns the
// JSON object found inside it.
func extractContentFromChoices(body []byte) string {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil || len(obj.Choices) == 0 {
		return ""
	}
	return extractJSON(obj.Choices[0].Message.Content)
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// Markdown fences are stripped first. Braces inside string literals are skipped.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

func mockFields() types.RawFields {
	return types.RawFields{
		types.FieldCallerName: "John",
		types.FieldPhone:      "987-654-3210",
		types.FieldDepartment: "Billing",
		types.FieldPriority:   "high",
		types.FieldSummary:    "Caller needs a refund for order 123.",
		types.FieldResponse:   "Thanks John, billing will process the refund for order 123 and call you back.",
	}
}

package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

type Options struct {
	GatewayURL string
	APIKey     string
	Model      string
	UseMock    bool
	Timeout    time.Duration // per request
	MaxRetry   time.Duration // total retry budget
	MaxBytes   int64         // largest audio file sent; 0 = no limit
}

// Analyzer scores a call recording through an OpenAI-compatible chat
// completions gateway that accepts input_audio content parts.
type Analyzer struct {
	opts       Options
	httpClient *http.Client
	log        *logger.Logger
}

func NewAnalyzer(opts Options, log *logger.Logger) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 2 * opts.Timeout
	}
	if log == nil {
		log = logger.New()
	}
	return &Analyzer{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log.Component("extractor"),
	}
}

// Analyze sends the audio file to the model and returns the parsed evaluation
// with a locally recomputed total.
func (a *Analyzer) Analyze(ctx context.Context, audioPath, format string) (*types.EvaluationRecord, error) {
	if a.opts.UseMock {
		a.log.Info("mock LLM mode ON - returning deterministic evaluation")
		rec := mockEvaluation()
		rec.RecomputeTotal()
		return rec, nil
	}
	if a.opts.GatewayURL == "" || a.opts.APIKey == "" {
		return nil, fmt.Errorf("%w: llm gateway not configured", types.ErrAnalysis)
	}

	if a.opts.MaxBytes > 0 {
		st, err := os.Stat(audioPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read audio: %w", types.ErrAnalysis, err)
		}
		if st.Size() > a.opts.MaxBytes {
			return nil, fmt.Errorf("%w: audio is %d bytes, limit %d", types.ErrAnalysis, st.Size(), a.opts.MaxBytes)
		}
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %w", types.ErrAnalysis, err)
	}
	payload, err := json.Marshal(a.requestBody(base64.StdEncoding.EncodeToString(audio), format))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAnalysis, err)
	}
	log := a.log.WithField("format", format).WithField("audio_bytes", len(audio))
	log.Info("sending audio to llm gateway")

	var extracted types.EvaluationRecord
	var lastErr error

	op := func() error {
		lastErr = nil
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.GatewayURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+a.opts.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Permanent: don't retry on client errors
			lastErr = fmt.Errorf("llm gateway status %d: %s", resp.StatusCode, truncate(string(body), 300))
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm server error %d: %s", resp.StatusCode, truncate(string(body), 300))
			return lastErr
		}

		// Try choices[0].message.content (OpenAI-like)
		if inner := extractContentFromChoices(body); inner != "" {
			var rec types.EvaluationRecord
			err := json.Unmarshal([]byte(inner), &rec)
			if err == nil {
				extracted = rec
				lastErr = nil
				return nil
			}
			lastErr = fmt.Errorf("decode evaluation: %w", err)
			log.WithError(err).Warn("unmarshal from choices content failed")
		}

		// Fallback: find first balanced JSON in response body
		if fallback := extractJSON(string(body)); fallback != "" {
			var rec types.EvaluationRecord
			if err := json.Unmarshal([]byte(fallback), &rec); err == nil && looksLikeEvaluation(fallback) {
				extracted = rec
				lastErr = nil
				return nil
			}
		}

		if lastErr == nil {
			lastErr = fmt.Errorf("no JSON found in LLM output")
		}
		return lastErr
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = a.opts.MaxRetry

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrAnalysis, lastErr)
	}

	model := extracted.TotalScore
	total := extracted.RecomputeTotal()
	log.WithField("model_total", model).WithField("total_score", total).Info("parsed evaluation")
	return &extracted, nil
}

func (a *Analyzer) requestBody(audioB64, format string) map[string]any {
	return map[string]any{
		"model":       a.opts.Model,
		"modalities":  []string{"text"},
		"temperature": 0.0,
		"messages": []map[string]any{
			{"role": "system", "content": EvaluationPrompt},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": userInstruction},
					{
						"type": "input_audio",
						"input_audio": map[string]string{
							"data":   audioB64,
							"format": format,
						},
					},
				},
			},
		},
	}
}

// looksLikeEvaluation guards the raw-body fallback against unrelated JSON
// such as the gateway envelope itself.
func looksLikeEvaluation(raw string) bool {
	return strings.Contains(raw, "_score")
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")

	// Remove markdown fences (commonly output by LLMs)
	for _, r := range []string{"```json", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
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

	// no balanced found
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

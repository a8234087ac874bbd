package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/llm"
)

// Complete implements llm.Completer against an OpenAI-compatible endpoint.
// The primary attempt goes through /chat/completions with JSON response mode;
// when it fails for any reason the same prompt is retried once through the
// legacy /completions endpoint before the unit is declared failed.
func (c *Client) Complete(ctx context.Context, modelID, prompt, imageRef string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	if modelID == "" {
		modelID = c.cfg.Model
	}

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"model", modelID,
		"temp", c.cfg.Temperature,
		"prompt_len", len(prompt),
		"has_image", imageRef != "",
	)

	content, err := c.chatCompletion(ctx, modelID, prompt, imageRef)
	if err == nil {
		c.logger.Info("llm.complete.ok",
			"req_id", rid, "content_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return content, nil
	}

	c.logger.Warn("llm.complete.primary_failed",
		"req_id", rid, "error", err,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	content, ferr := c.legacyCompletion(ctx, modelID, prompt)
	if ferr != nil {
		c.logger.Error("llm.complete.fallback_failed",
			"req_id", rid, "error", ferr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: primary: %v; fallback: %v", common.ErrInference, err, ferr)
	}

	c.logger.Info("llm.complete.fallback_ok",
		"req_id", rid, "content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) chatCompletion(ctx context.Context, modelID, prompt, imageRef string) (string, error) {
	var userContent any = prompt
	if imageRef != "" {
		userContent = []map[string]any{
			{"type": "text", "text": prompt},
			{"type": "image_url", "image_url": map[string]any{"url": imageRef}},
		}
	}

	body := map[string]any{
		"model":           modelID,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": userContent},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, c.authHeaders(), c.logger)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func (c *Client) legacyCompletion(ctx context.Context, modelID, prompt string) (string, error) {
	body := map[string]any{
		"model":       modelID,
		"temperature": c.cfg.Temperature,
		"prompt":      prompt,
		"max_tokens":  1024,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, c.authHeaders(), c.logger)
	if err != nil {
		return "", err
	}

	var lc struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &lc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(lc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return strings.TrimSpace(lc.Choices[0].Text), nil
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Package llmclient is the module's shared Anthropic Messages API client,
// used wherever SPEC_FULL.md needs an LLM call outside extraction's own
// prompt/schema (internal/extract.LLMExtractor, Task 7): contradiction
// detection's LLM/MIXED/AUTO strategies (internal/contradiction.LLMDetector)
// and the eleven-layer retriever's L11 relevance judge
// (internal/retrieve.LLMJudge). Grounded, like internal/extract/llm.go, on
// untoldecay-BeadsLog's internal/compact.HaikuClient for the call-with-retry
// shape — the teacher's own pkg/batch is syscall/js-only and cannot run
// outside a browser.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kittclouds/recall/internal/contradiction"
	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/retrieve"
)

// Client wraps the Anthropic SDK with the module's retry policy. It
// implements both contradiction.LLMDetector and retrieve.LLMJudge, so the
// engine facade can wire one instance wherever either interface is asked for.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// New creates a Client backed by the given API key and model (e.g.
// "claude-3-5-haiku-20241022").
func New(apiKey, model string) *Client {
	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     3,
		initialBackoff: time.Second,
	}
}

const contradictionSystemPrompt = `You judge whether two statements about the same subject contradict each other.
Return ONLY a valid JSON object: {"has_contradiction": bool, "type": "direct"|"temporal"|"logical"|"soft", "confidence": 0.0-1.0, "reason": string}.
No markdown, no explanation. Start with { and end with }.`

// DetectContradiction implements contradiction.LLMDetector: it asks the
// model whether new contradicts old given episodeContext, matching the
// original's {"has_contradiction","type","confidence","reason"} schema.
func (c *Client) DetectContradiction(ctx context.Context, old, new *model.TemporalFact, episodeContext string) (*contradiction.LLMVerdict, error) {
	prompt := fmt.Sprintf(
		"OLD FACT: %s\nNEW FACT: %s\nCONTEXT: %s\n\nDo these contradict?",
		old.Fact, new.Fact, episodeContext,
	)
	raw, err := c.complete(ctx, contradictionSystemPrompt, prompt)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamTimeout, "llmclient: contradiction check failed", err)
	}

	var parsed struct {
		HasContradiction bool    `json:"has_contradiction"`
		Type             string  `json:"type"`
		Confidence       float64 `json:"confidence"`
		Reason           string  `json:"reason"`
	}
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("llmclient: malformed contradiction verdict: %w", err)
	}
	return &contradiction.LLMVerdict{
		HasContradiction: parsed.HasContradiction,
		Type:             model.ContradictionType(parsed.Type),
		Confidence:       parsed.Confidence,
		Reason:           parsed.Reason,
	}, nil
}

const judgeSystemPrompt = `You score how relevant each candidate passage is to a query, on a 0.0-1.0 scale.
Return ONLY a valid JSON object mapping each given doc id to its relevance score.
No markdown, no explanation. Start with { and end with }.`

// Judge implements retrieve.LLMJudge (L11): it asks the model to score each
// candidate doc's relevance to query and returns a docID->score map.
func (c *Client) Judge(ctx context.Context, query string, docs []retrieve.JudgeDoc) (map[string]float64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "QUERY: %s\n\nCANDIDATES:\n", query)
	for _, d := range docs {
		fmt.Fprintf(&sb, "- id=%q text=%q\n", d.DocID, d.Text)
	}

	raw, err := c.complete(ctx, judgeSystemPrompt, sb.String())
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamTimeout, "llmclient: judge call failed", err)
	}

	cleaned := stripCodeFence(strings.TrimSpace(raw))
	var scores map[string]float64
	if err := json.Unmarshal([]byte(cleaned), &scores); err != nil {
		return nil, fmt.Errorf("llmclient: malformed judge scores: %w", err)
	}
	return scores, nil
}

const consistencySystemPrompt = `You check a new conversation turn against a list of absolute rules that must
never be violated. Return ONLY a valid JSON array of strings: one short
description per violated rule, or an empty array [] if nothing is violated.
No markdown, no explanation. Start with [ and end with ].`

// CheckConsistency implements the engine facade's write-time consistency
// check (SPEC_FULL.md §4.F): it offers the pending absolute rules plus the
// new episode text to the model and returns a consistency_warnings list,
// one entry per rule the model judges violated. An empty result means no
// violation was found.
func (c *Client) CheckConsistency(ctx context.Context, rules []string, episodeText string) ([]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("ABSOLUTE RULES:\n")
	for _, r := range rules {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	fmt.Fprintf(&sb, "\nNEW TURN:\n%s\n", episodeText)

	raw, err := c.complete(ctx, consistencySystemPrompt, sb.String())
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamTimeout, "llmclient: consistency check failed", err)
	}

	cleaned := stripCodeFence(strings.TrimSpace(raw))
	var warnings []string
	if err := json.Unmarshal([]byte(cleaned), &warnings); err != nil {
		return nil, fmt.Errorf("llmclient: malformed consistency verdict: %w", err)
	}
	return warnings, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(systemPrompt + "\n\n" + userPrompt)),
		},
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("llmclient: unexpected LLM response: no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("llmclient: unexpected LLM response: not a text block (type=%s)", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableLLMError(err) {
			return "", fmt.Errorf("llmclient: non-retryable LLM error: %w", err)
		}
	}

	return "", fmt.Errorf("llmclient: LLM call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func stripCodeFence(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

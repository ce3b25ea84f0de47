package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kittclouds/recall/internal/errs"
)

// MaxPromptChars caps the text sent to the LLM, matching the teacher's
// pkg/extraction.MaxTextLength (ported from the TypeScript relation
// extractor's 8000-char limit).
const MaxPromptChars = 8000

// extractionSystemPrompt instructs the model to return structured JSON only,
// ported verbatim from pkg/extraction.SystemPrompt.
const extractionSystemPrompt = `You are an entity and relationship extraction assistant for narrative analysis.
Extract named entities AND relationships between them from the given text.
Return ONLY a valid JSON object with two arrays: "entities" and "relations".
No markdown, no explanation. Start with { and end with }.`

// buildUserPrompt constructs the combined extraction prompt, ported from
// pkg/extraction.BuildUserPrompt.
func buildUserPrompt(text string, knownEntities []string) string {
	truncated := text
	if len(truncated) > MaxPromptChars {
		truncated = truncated[:MaxPromptChars]
	}

	var sb strings.Builder
	sb.WriteString("Extract named entities AND relationships from this text. ")
	sb.WriteString("Return a JSON object with two arrays: \"entities\" and \"relations\".\n\n")

	if len(knownEntities) > 0 {
		sb.WriteString("KNOWN ENTITIES (prioritize these):\n")
		sb.WriteString(strings.Join(knownEntities, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("=== ENTITIES ===\n")
	sb.WriteString("Each entity object:\n")
	sb.WriteString("- \"label\": Canonical name (string)\n")
	sb.WriteString(fmt.Sprintf("- \"kind\": One of: %s\n", strings.Join(AllEntityKinds, ", ")))
	sb.WriteString("- \"confidence\": 0.0-1.0 (number)\n")
	sb.WriteString("- \"aliases\": Optional array of alternative names (string[])\n\n")

	sb.WriteString("=== RELATIONS ===\n")
	sb.WriteString("Each relation object:\n")
	sb.WriteString("- \"subject\": Entity performing the action (string)\n")
	sb.WriteString("- \"object\": Entity receiving the action (string)\n")
	sb.WriteString("- \"verb\": The verb phrase from the text (string)\n")
	sb.WriteString("- \"relationType\": UPPER_SNAKE_CASE relation name (string)\n")
	sb.WriteString("- \"confidence\": 0.0-1.0 (number)\n")
	sb.WriteString("- \"sourceSentence\": The exact sentence this came from (string)\n\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("1. Only proper nouns — skip generic terms\n")
	sb.WriteString("2. Deduplicate entities\n")
	sb.WriteString("3. One relationship per verb phrase\n")
	sb.WriteString("4. confidence >= 0.8 for explicit, 0.5-0.8 for implied\n\n")

	sb.WriteString("TEXT:\n")
	sb.WriteString(truncated)

	return sb.String()
}

// rawEntity/rawRelation/rawExtraction mirror pkg/extraction's JSON schema.
type rawEntity struct {
	Label      string   `json:"label"`
	Kind       string   `json:"kind"`
	Aliases    []string `json:"aliases,omitempty"`
	Confidence float64  `json:"confidence"`
}

type rawRelation struct {
	Subject        string  `json:"subject"`
	Object         string  `json:"object"`
	Verb           string  `json:"verb"`
	RelationType   string  `json:"relationType"`
	Confidence     float64 `json:"confidence"`
	SourceSentence string  `json:"sourceSentence"`
}

type rawExtraction struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

var (
	entityRepairPattern = regexp.MustCompile(
		`\{\s*"label"\s*:\s*"[^"]+"\s*,\s*"kind"\s*:\s*"[^"]+"\s*(?:,\s*"[^"]+"\s*:\s*(?:"[^"]*"|[\d.]+|\[[^\]]*\]|true|false|null))*\s*\}`)
	relationRepairPattern = regexp.MustCompile(
		`\{\s*"subject"\s*:\s*"[^"]+"\s*,\s*"object"\s*:\s*"[^"]+"\s*,\s*"relationType"\s*:\s*"[^"]+"\s*(?:,\s*"[^"]+"\s*:\s*(?:"[^"]*"|[\d.]+|\[[^\]]*\]|true|false|null))*\s*\}`)
)

// parseLLMResponse parses a raw model response into a Result, handling
// markdown code fences and falling back to regex repair on malformed JSON.
// Ported from pkg/extraction/parser.go's ParseResponse/filterResult.
func parseLLMResponse(raw string) (Result, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return Result{}, nil
	}

	var parsed rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return filterExtraction(parsed), nil
	}

	entities := repairEntities(cleaned)
	relations := repairRelations(cleaned)
	if len(entities) == 0 && len(relations) == 0 {
		return Result{}, errs.New(errs.CorruptIndex, "extract: failed to parse LLM response")
	}
	return filterExtraction(rawExtraction{Entities: entities, Relations: relations}), nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func filterExtraction(r rawExtraction) Result {
	out := Result{
		Entities:  make([]Entity, 0, len(r.Entities)),
		Relations: make([]Relation, 0, len(r.Relations)),
	}

	for _, e := range r.Entities {
		label := strings.TrimSpace(e.Label)
		if label == "" || !IsValidEntityKind(e.Kind) {
			continue
		}
		conf := e.Confidence
		if conf <= 0 {
			conf = 0.8
		}
		out.Entities = append(out.Entities, Entity{
			Name:       label,
			Kind:       ParseEntityKind(e.Kind),
			Aliases:    e.Aliases,
			Confidence: conf,
		})
	}

	for _, r := range r.Relations {
		subject := strings.TrimSpace(r.Subject)
		object := strings.TrimSpace(r.Object)
		relType := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(r.RelationType), " ", "_"))
		if subject == "" || object == "" || relType == "" {
			continue
		}
		conf := r.Confidence
		if conf <= 0 {
			conf = 0.7
		}
		verb := strings.TrimSpace(r.Verb)
		if verb == "" {
			verb = strings.ToLower(strings.ReplaceAll(relType, "_", " "))
		}
		out.Relations = append(out.Relations, Relation{
			Subject:        subject,
			Predicate:      relType,
			Object:         object,
			Fact:           subject + " " + verb + " " + object,
			SourceSentence: strings.TrimSpace(r.SourceSentence),
			Confidence:     conf,
		})
	}

	return out
}

func repairEntities(raw string) []rawEntity {
	matches := entityRepairPattern.FindAllString(raw, -1)
	out := make([]rawEntity, 0, len(matches))
	for _, m := range matches {
		var item rawEntity
		if err := json.Unmarshal([]byte(m), &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

func repairRelations(raw string) []rawRelation {
	matches := relationRepairPattern.FindAllString(raw, -1)
	out := make([]rawRelation, 0, len(matches))
	for _, m := range matches {
		var item rawRelation
		if err := json.Unmarshal([]byte(m), &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

// BudgetGate lets a caller veto an LLM call. Modeled as a small local
// interface (same pattern as graph.ContradictionDetector) so internal/extract
// doesn't import the budget manager package (internal/budget).
type BudgetGate interface {
	Allow(operation string, estimatedTokens int) bool
}

// LLMExtractor implements SPEC_FULL.md §4.D's LLM mode: one prompt per
// episode over Anthropic's Messages API, with strict JSON parsing and
// regex-repair fallback. Grounded on the teacher's pkg/extraction
// (types/prompts/parser) for prompt and schema shape, and on
// untoldecay-BeadsLog's internal/compact.HaikuClient for the actual
// Anthropic SDK call-with-retry pattern (the teacher's own pkg/batch is
// syscall/js-only and cannot run outside a browser).
type LLMExtractor struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewLLMExtractor creates an LLMExtractor backed by the given API key and
// model (e.g. "claude-3-5-haiku-20241022").
func NewLLMExtractor(apiKey string, model string) *LLMExtractor {
	return &LLMExtractor{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     3,
		initialBackoff: time.Second,
	}
}

// Extract sends one extraction prompt for text, optionally primed with
// knownEntities, and parses the structured response.
func (l *LLMExtractor) Extract(ctx context.Context, text string, knownEntities []string) (Result, error) {
	prompt := buildUserPrompt(text, knownEntities)
	raw, err := l.callWithRetry(ctx, prompt)
	if err != nil {
		return Result{}, errs.Wrap(errs.UpstreamTimeout, "extract: LLM call failed", err)
	}
	return parseLLMResponse(raw)
}

func (l *LLMExtractor) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(extractionSystemPrompt + "\n\n" + prompt)),
		},
	}

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := l.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := l.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("extract: unexpected LLM response: no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("extract: unexpected LLM response: not a text block (type=%s)", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableLLMError(err) {
			return "", fmt.Errorf("extract: non-retryable LLM error: %w", err)
		}
	}

	return "", fmt.Errorf("extract: LLM call failed after %d attempts: %w", l.maxRetries+1, lastErr)
}

// isRetryableLLMError mirrors haiku.go's retry predicate: retry on rate
// limiting and server errors, give up on anything else (bad request, auth,
// cancellation).
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

package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"barista-backend/internal/models"
)

// GenerationPolicy is applied to every model handle the backend builds.
type GenerationPolicy struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
	SafetyThreshold genai.HarmBlockThreshold
}

// DefaultPolicy keeps replies short and blocks medium-and-above harm.
var DefaultPolicy = GenerationPolicy{
	Temperature:     0.7,
	TopP:            0.8,
	TopK:            40,
	MaxOutputTokens: 150,
	SafetyThreshold: genai.HarmBlockMediumAndAbove,
}

var safetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

type GeminiBackend struct {
	client   *genai.Client
	policy   GenerationPolicy
	rateChan chan struct{} // Token bucket
}

func NewGeminiBackend(apiKey string, concurrentReqs int) (*GeminiBackend, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiBackend{
		client:   client,
		policy:   DefaultPolicy,
		rateChan: rateChan,
	}, nil
}

func (b *GeminiBackend) Close() {
	b.client.Close()
}

// acquireRate blocks until a rate slot is available
func (b *GeminiBackend) acquireRate(ctx context.Context) error {
	select {
	case <-b.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (b *GeminiBackend) releaseRate() {
	b.rateChan <- struct{}{}
}

// Generate builds a fresh model handle for name, starts a chat primed with
// history and sends message.
func (b *GeminiBackend) Generate(ctx context.Context, name string, history []models.Turn, message string) (string, error) {
	if err := b.acquireRate(ctx); err != nil {
		return "", err
	}
	defer b.releaseRate()

	model := b.client.GenerativeModel(name)
	applyPolicy(model, b.policy)

	cs := model.StartChat()
	cs.History = toContents(history)

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("Gemini %s candidate %d stopped due to %s", name, i, cand.FinishReason)
		}
	}

	text := extractText(resp)
	log.Printf("Raw response from %s: %q", name, text)
	return text, nil
}

func applyPolicy(model *genai.GenerativeModel, p GenerationPolicy) {
	model.SetTemperature(p.Temperature)
	model.SetTopP(p.TopP)
	model.SetTopK(p.TopK)
	model.SetMaxOutputTokens(p.MaxOutputTokens)

	model.SafetySettings = make([]*genai.SafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  c,
			Threshold: p.SafetyThreshold,
		})
	}
}

// toContents converts stored turns to Gemini chat history. Gemini only
// accepts "user" and "model" roles, so system turns are sent as user turns.
func toContents(history []models.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := models.RoleUser
		if t.Role == models.RoleModel {
			role = models.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return out
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

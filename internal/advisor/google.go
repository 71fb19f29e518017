package advisor

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiKeyVars are checked in order for the Gemini API key.
var geminiKeyVars = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}

// googleProvider talks to Gemini. Each Complete opens its own client so the
// caller's context bounds the connection.
type googleProvider struct {
	opts  []option.ClientOption
	model string
}

func newGoogleProvider(model string) (Provider, error) {
	for _, name := range geminiKeyVars {
		if key := os.Getenv(name); key != "" {
			return &googleProvider{opts: []option.ClientOption{option.WithAPIKey(key)}, model: model}, nil
		}
	}
	return nil, fmt.Errorf("advisor: none of %v is set", geminiKeyVars)
}

func (p *googleProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	client, err := genai.NewClient(ctx, p.opts...)
	if err != nil {
		return "", fmt.Errorf("google: open client: %w", err)
	}
	defer client.Close()

	gm := client.GenerativeModel(p.model)
	gm.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	gm.SetMaxOutputTokens(int32(maxTokens))
	gm.SetTemperature(float32(temperature))
	gm.ResponseMIMEType = "application/json"

	resp, err := gm.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: generate: %w", err)
	}
	return joinParts("google", candidateText(resp))
}

// candidateText collects the text parts of every candidate, in order.
func candidateText(resp *genai.GenerateContentResponse) []string {
	var out []string
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				out = append(out, string(txt))
			}
		}
	}
	return out
}

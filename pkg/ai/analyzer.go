package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agrovision/pkg/domain"
)

// Analyzer produces a structured health report for one crop image.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, jpegBytes []byte, lang domain.Language) (domain.AnalysisResult, error)
}

// Assistant answers a chat transcript with a single reply.
type Assistant interface {
	Reply(ctx context.Context, transcript []domain.ChatMessage, lang domain.Language) (string, error)
}

const (
	analysisSystemPrompt = `You are an expert agronomist and plant pathologist.
Analyze the provided image of a crop or plant.
1. Identify the crop type.
2. Determine its health status (Healthy or Diseased).
3. If diseased, identify the disease and symptoms.
4. Provide specific, actionable recommendations for treatment and preventative measures.

IMPORTANT: You must respond in the following language: %s.
Always return your analysis in a structured JSON format matching the schema provided.`

	analysisPrompt = "Analyze this crop image and provide a detailed health report."

	assistantSystemPrompt = `You are AgroVision AI Assistant. You help with agriculture and plant health.
Respond in %s. Be concise and professional.`

	// ChatFallback is returned when the assistant produced no text at all.
	ChatFallback = "I couldn't process that request."
)

// CropAnalyzer implements Analyzer and Assistant over the Gemini API.
type CropAnalyzer struct {
	client        *GeminiClient
	analysisModel string
	chatModel     string
}

// NewCropAnalyzer binds the client to fixed analysis and chat models.
func NewCropAnalyzer(client *GeminiClient, analysisModel, chatModel string) *CropAnalyzer {
	if analysisModel == "" {
		analysisModel = "gemini-3-pro-preview"
	}
	if chatModel == "" {
		chatModel = "gemini-3-flash-preview"
	}
	return &CropAnalyzer{client: client, analysisModel: analysisModel, chatModel: chatModel}
}

var analysisSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"cropName":             {Type: TypeString},
		"healthStatus":         {Type: TypeString, Enum: []string{"Healthy", "Diseased", "Unknown"}},
		"confidence":           {Type: TypeNumber},
		"diseaseName":          {Type: TypeString},
		"symptoms":             {Type: TypeArray, Items: &Schema{Type: TypeString}},
		"cause":                {Type: TypeString},
		"recommendations":      {Type: TypeArray, Items: &Schema{Type: TypeString}},
		"preventativeMeasures": {Type: TypeArray, Items: &Schema{Type: TypeString}},
	},
	Required: []string{"cropName", "healthStatus", "confidence", "recommendations", "preventativeMeasures"},
}

// AnalyzeImage sends the frame with the agronomist persona and a declared
// output schema, then decodes the JSON payload. No retries, no clamping:
// remote failures and malformed payloads propagate to the caller.
func (a *CropAnalyzer) AnalyzeImage(ctx context.Context, jpegBytes []byte, lang domain.Language) (domain.AnalysisResult, error) {
	req := GenerateRequest{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: analysisPrompt},
				NewInlinePart("image/jpeg", jpegBytes),
			},
		}},
		SystemInstruction: &Content{Parts: []Part{{Text: fmt.Sprintf(analysisSystemPrompt, lang)}}},
		GenerationConfig: &GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   analysisSchema,
		},
	}
	text, err := a.client.GenerateContent(ctx, a.analysisModel, req)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("parse analysis payload: %w", err)
	}
	// The schema marks both lists required; keep them non-nil even when the
	// model returns empty arrays for a healthy crop.
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	if result.PreventativeMeasures == nil {
		result.PreventativeMeasures = []string{}
	}
	return result, nil
}

// Reply sends the whole transcript in order and returns the assistant's text.
// An empty model reply degrades to ChatFallback instead of failing.
func (a *CropAnalyzer) Reply(ctx context.Context, transcript []domain.ChatMessage, lang domain.Language) (string, error) {
	contents := make([]Content, 0, len(transcript))
	for _, msg := range transcript {
		parts := make([]Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			switch {
			case len(p.Data) > 0:
				parts = append(parts, NewInlinePart(p.MIME, p.Data))
			case p.Text != "":
				parts = append(parts, Part{Text: p.Text})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, Content{Role: string(msg.Role), Parts: parts})
	}
	req := GenerateRequest{
		Contents:          contents,
		SystemInstruction: &Content{Parts: []Part{{Text: fmt.Sprintf(assistantSystemPrompt, lang)}}},
	}
	text, err := a.client.GenerateContent(ctx, a.chatModel, req)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			return ChatFallback, nil
		}
		return "", err
	}
	return text, nil
}

package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/models"
)

var (
	ErrRateLimited      = errors.New("rate limit exceeded, please try again later")
	ErrCreditsExhausted = errors.New("AI credits exhausted")
	ErrNotConfigured    = errors.New("diagnosis API key not configured")
)

const toolName = "plant_diagnosis"

const systemPrompt = `You are an expert agricultural plant pathologist trained on the PlantVillage dataset (50,000+ images, 38 crop-disease classes). Given an image of a plant leaf, identify:
1. The plant species (e.g., Tomato, Rice, Cotton, Potato, Corn, Grape, Apple, etc.)
2. The disease (or "Healthy" if no disease detected)
3. A confidence score from 0.0 to 1.0
4. A severity score from 0.0 to 1.0 (0 = no damage, 1 = severe)
5. 3-5 specific treatment recommendations
6. 3-5 prevention steps

Base your analysis on visible symptoms: leaf spots, discoloration, wilting, lesions, mold, powdery coating, curling, necrosis patterns. If the image is unclear or not a plant leaf, still provide your best assessment with low confidence.`

// Fallback is returned when the model answers without a tool call.
func Fallback() models.Diagnosis {
	return models.Diagnosis{
		PlantSpecies:    "Unknown",
		DiseaseName:     "Unable to identify",
		Confidence:      0.1,
		Severity:        0,
		Treatments:      []string{"Please upload a clearer image of the leaf"},
		PreventionSteps: []string{"Ensure good lighting when taking photos"},
	}
}

// Client classifies plant leaf images through a chat-completions endpoint
// with forced tool calling.
type Client struct {
	url    string
	apiKey string
	model  string
	client *resty.Client
}

func NewClient(url, apiKey, model string) *Client {
	client := resty.New()
	client.SetTimeout(60 * time.Second)
	return &Client{url: url, apiKey: apiKey, model: model, client: client}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Diagnose classifies the image at imageURL. Confidence and severity are
// clamped to [0,1].
func (c *Client) Diagnose(ctx context.Context, imageURL string) (*models.Diagnosis, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(c.request(imageURL)).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("diagnosis request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusPaymentRequired:
		return nil, ErrCreditsExhausted
	}
	if resp.IsError() {
		logger.Log.Error("Diagnosis upstream error",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", string(resp.Body())),
		)
		return nil, fmt.Errorf("diagnosis request: http %d", resp.StatusCode())
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return nil, fmt.Errorf("diagnosis decode: %w", err)
	}

	d := Fallback()
	if len(cr.Choices) > 0 && len(cr.Choices[0].Message.ToolCalls) > 0 {
		args := cr.Choices[0].Message.ToolCalls[0].Function.Arguments
		if args != "" {
			var parsed models.Diagnosis
			if err := json.Unmarshal([]byte(args), &parsed); err != nil {
				return nil, fmt.Errorf("diagnosis arguments: %w", err)
			}
			d = parsed
		}
	}

	d.Confidence = clamp01(d.Confidence)
	d.Severity = clamp01(d.Severity)
	if d.Treatments == nil {
		d.Treatments = []string{}
	}
	if d.PreventionSteps == nil {
		d.PreventionSteps = []string{}
	}
	return &d, nil
}

func (c *Client) request(imageURL string) map[string]any {
	return map[string]any{
		"model": c.model,
		"messages": []any{
			map[string]any{"role": "system", "content": systemPrompt},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "Analyze this plant leaf image for species identification and disease detection."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
				},
			},
		},
		"tools": []any{
			map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        toolName,
					"description": "Return structured plant disease diagnosis results",
					"parameters": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"plant_species":    map[string]any{"type": "string", "description": "Plant species name e.g. Tomato, Rice, Cotton"},
							"disease_name":     map[string]any{"type": "string", "description": "Disease name or 'Healthy'"},
							"confidence":       map[string]any{"type": "number", "description": "Confidence 0.0-1.0"},
							"severity":         map[string]any{"type": "number", "description": "Severity 0.0-1.0"},
							"treatments":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "3-5 treatment recommendations"},
							"prevention_steps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "3-5 prevention steps"},
						},
						"required":             []string{"plant_species", "disease_name", "confidence", "severity", "treatments", "prevention_steps"},
						"additionalProperties": false,
					},
				},
			},
		},
		"tool_choice": map[string]any{"type": "function", "function": map[string]any{"name": toolName}},
	}
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

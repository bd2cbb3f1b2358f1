package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"sceneforge/internal/constraint"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// GenAIClient implements VLMClient on the Gemini API with structured JSON
// output.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// GenAIConfig holds configuration for the Gemini-backed VLM client.
type GenAIConfig struct {
	APIKey string
	Model  string
}

// NewGenAIClient creates a Gemini-backed VLM client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfig, "perception", "VLM API key is required").
			WithActions("set VLM_API_KEY or GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, types.WrapError(types.ErrConfig, "perception",
			fmt.Errorf("failed to create GenAI client: %w", err))
	}
	return &GenAIClient{client: client, model: cfg.Model}, nil
}

// ExtractObjects implements VLMClient.
func (c *GenAIClient) ExtractObjects(ctx context.Context, sessionID string, req *types.SceneRequest, sceneRefPath string) (*types.ObjectSet, error) {
	timer := logging.StartTimer(logging.CategoryPerceive, "ExtractObjects")
	defer timer.StopWithInfo()

	raw, err := c.complete(ctx, objectExtractionSystem,
		BuildObjectExtractionPrompt(req.Text, req.Style, req.Constraints), sceneRefPath)
	if err != nil {
		return nil, err
	}

	var set types.ObjectSet
	if err := json.Unmarshal([]byte(stripFences(raw)), &set); err != nil {
		return nil, types.WrapError(types.ErrLLM, "perception",
			fmt.Errorf("object extraction returned unparseable JSON: %w", err))
	}
	for _, o := range set.Objects {
		o.NormalizeRotation()
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryPerceive).Info("Extracted %d objects for session %s", len(set.Objects), sessionID)
	return &set, nil
}

// relationWire is the model-facing relation shape.
type relationWire struct {
	Type       string  `json:"type"`
	Relation   string  `json:"relation"`
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Priority   string  `json:"priority"`
	ThresholdM float64 `json:"threshold_m"`
	Weight     float64 `json:"weight"`
	IsSoft     bool    `json:"is_soft"`
}

// ExtractConstraints implements VLMClient.
func (c *GenAIClient) ExtractConstraints(ctx context.Context, text string, objects *types.ObjectSet, sceneRefPath string) ([]*constraint.SpatialConstraint, error) {
	timer := logging.StartTimer(logging.CategoryPerceive, "ExtractConstraints")
	defer timer.StopWithInfo()

	raw, err := c.complete(ctx, constraintExtractionSystem,
		BuildConstraintExtractionPrompt(text, objects), sceneRefPath)
	if err != nil {
		return nil, err
	}

	var wires []relationWire
	if err := json.Unmarshal([]byte(stripFences(raw)), &wires); err != nil {
		return nil, types.WrapError(types.ErrLLM, "perception",
			fmt.Errorf("constraint extraction returned unparseable JSON: %w", err))
	}

	out := make([]*constraint.SpatialConstraint, 0, len(wires))
	for _, w := range wires {
		// Relations naming unknown objects are dropped rather than failing
		// the stage; the model occasionally invents ids.
		if objects.ByID(w.Source) == nil || objects.ByID(w.Target) == nil {
			logging.Get(logging.CategoryPerceive).Warn(
				"Dropping relation %s(%s, %s): unknown object id", w.Relation, w.Source, w.Target)
			continue
		}
		sc, err := constraint.New(constraint.Relation(w.Relation), w.Source, w.Target)
		if err != nil {
			return nil, err
		}
		if w.Priority == string(constraint.PrioritySecondary) {
			sc.Priority = constraint.PrioritySecondary
		}
		sc.ThresholdM = w.ThresholdM
		if w.Weight > 0 {
			sc.Weight = w.Weight
		}
		sc.IsSoft = w.IsSoft
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// complete issues one structured-output generation call, attaching the
// scene reference image when available.
func (c *GenAIClient) complete(ctx context.Context, system, user, imagePath string) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(user)}
	if imagePath != "" {
		img, err := os.ReadFile(imagePath)
		if err != nil {
			return "", types.WrapError(types.ErrFileNotFound, "perception", err)
		}
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	logging.APIDebug("GenAI call model=%s prompt_len=%d", c.model, len(user))
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyGenAIError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", types.NewError(types.ErrLLM, "perception", "model returned an empty response")
	}
	return text, nil
}

// classifyGenAIError maps transport-level failures onto the error taxonomy
// so the bounded executor can decide retryability.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return types.WrapError(types.ErrUpstreamRateLimited, "perception", err)
		case 401, 403:
			return types.WrapError(types.ErrUpstreamAuth, "perception", err)
		case 400:
			return types.WrapError(types.ErrUpstreamRefused, "perception", err)
		}
		if apiErr.Code >= 500 {
			return types.WrapError(types.ErrUpstreamTransport, "perception", err)
		}
		return types.WrapError(types.ErrLLM, "perception", err)
	}
	return types.WrapError(types.ErrUpstreamTransport, "perception", err)
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

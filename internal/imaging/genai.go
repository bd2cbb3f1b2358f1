package imaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// GenAIClient implements Client on Gemini image generation. Both calls use
// the same model with image response modality; cards attach the scene
// reference so the per-object render inherits the scene's style.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// GenAIConfig holds configuration for the Gemini-backed image client.
type GenAIConfig struct {
	APIKey string
	Model  string
}

// NewGenAIClient creates a Gemini-backed image client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfig, "imaging", "image API key is required").
			WithActions("set IMAGE_API_KEY or GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-exp-image-generation"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, types.WrapError(types.ErrConfig, "imaging",
			fmt.Errorf("failed to create image client: %w", err))
	}
	return &GenAIClient{client: client, model: cfg.Model}, nil
}

// GenerateSceneReference implements Client.
func (c *GenAIClient) GenerateSceneReference(ctx context.Context, sessionID, text, style string) (*SceneReference, error) {
	timer := logging.StartTimer(logging.CategoryImaging, "GenerateSceneReference")
	defer timer.StopWithInfo()

	prompt := sceneRefPrompt(text, style)
	start := time.Now()
	img, err := c.generate(ctx, prompt, "")
	if err != nil {
		return nil, err
	}
	logging.Imaging("Scene reference for %s: %d bytes", sessionID, len(img))
	return &SceneReference{
		ImageBytes: img,
		PromptUsed: prompt,
		ElapsedS:   time.Since(start).Seconds(),
	}, nil
}

// GenerateObjectCards implements Client. Results keep the input order;
// callers batch per object through the executor, so the typical input here
// has length one.
func (c *GenAIClient) GenerateObjectCards(ctx context.Context, sessionID string, objects []*types.Object, sceneRefPath string) ([]*CardResult, error) {
	out := make([]*CardResult, 0, len(objects))
	for _, obj := range objects {
		prompt := cardPrompt(obj)
		start := time.Now()
		img, err := c.generate(ctx, prompt, sceneRefPath)
		if err != nil {
			return nil, err
		}
		out = append(out, &CardResult{
			ObjectID:   obj.ObjectID,
			CardBytes:  img,
			PromptUsed: prompt,
			ElapsedS:   time.Since(start).Seconds(),
		})
	}
	return out, nil
}

// generate issues one image generation call and returns the first inline
// image payload in the response.
func (c *GenAIClient) generate(ctx context.Context, prompt, refImagePath string) ([]byte, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if refImagePath != "" {
		ref, err := os.ReadFile(refImagePath)
		if err != nil {
			return nil, types.WrapError(types.ErrFileNotFound, "imaging", err)
		}
		parts = append(parts, genai.NewPartFromBytes(ref, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	logging.APIDebug("Image call model=%s prompt_len=%d", c.model, len(prompt))
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, classifyImageError(err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, types.NewError(types.ErrImageGeneration, "imaging",
		"model response contained no image data")
}

func classifyImageError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return types.WrapError(types.ErrUpstreamRateLimited, "imaging", err)
		case 401, 403:
			return types.WrapError(types.ErrUpstreamAuth, "imaging", err)
		case 400:
			return types.WrapError(types.ErrUpstreamRefused, "imaging", err)
		}
		if apiErr.Code >= 500 {
			return types.WrapError(types.ErrUpstreamTransport, "imaging", err)
		}
		return types.WrapError(types.ErrImageGeneration, "imaging", err)
	}
	return types.WrapError(types.ErrUpstreamTransport, "imaging", err)
}

func sceneRefPrompt(text, style string) string {
	var b strings.Builder
	b.WriteString("Render a single photorealistic interior view of the following scene. ")
	b.WriteString("Show the whole room from a corner at eye height, every named object visible. ")
	b.WriteString("No people, no text overlays.\n\nScene: ")
	b.WriteString(text)
	if style != "" {
		b.WriteString("\nStyle: ")
		b.WriteString(style)
	}
	return b.String()
}

func cardPrompt(obj *types.Object) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Render a single product-photography image of one object: %s. ", obj.VisualDesc)
	fmt.Fprintf(&b, "Three-quarter view on a neutral background, nothing else in frame. ")
	fmt.Fprintf(&b, "Approximate real size %.2fm x %.2fm x %.2fm. ", obj.Size.X, obj.Size.Y, obj.Size.Z)
	if len(obj.StyleHints) > 0 {
		fmt.Fprintf(&b, "Style: %s. ", strings.Join(obj.StyleHints, ", "))
	}
	b.WriteString("Match the material palette of the attached scene reference if provided.")
	return b.String()
}

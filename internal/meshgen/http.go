package meshgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// HTTPClient implements Client against a job-handle mesh generation API:
// submit returns a job id, the job is polled until it settles, and the
// finished mesh is downloaded to a temp file. Most hosted 3D generators
// (image-to-3D and text-to-3D alike) expose this shape.
type HTTPClient struct {
	base     string
	apiKey   string
	http     *http.Client
	interval time.Duration
	errMax   int
}

// HTTPConfig configures the mesh generation endpoint.
type HTTPConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration // per HTTP request, not per job
	PollInterval time.Duration
	PollErrorMax int // consecutive poll failures before giving up
}

// NewHTTPClient creates a job-handle mesh generation client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrConfig, "meshgen", "3D service base URL is required").
			WithActions("set THREED_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollErrorMax <= 0 {
		cfg.PollErrorMax = 3
	}
	return &HTTPClient{
		base:     cfg.BaseURL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		interval: cfg.PollInterval,
		errMax:   cfg.PollErrorMax,
	}, nil
}

type submitRequest struct {
	ObjectID  string    `json:"object_id"`
	Prompt    string    `json:"prompt,omitempty"`
	ImageB64  string    `json:"image_base64,omitempty"`
	SizeHintM []float64 `json:"size_hint_m,omitempty"`
	Format    string    `json:"format"`
}

type jobStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"` // queued | running | succeeded | failed
	AssetURL string `json:"asset_url,omitempty"`
	Format   string `json:"format,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GenerateFromCard implements Client.
func (c *HTTPClient) GenerateFromCard(ctx context.Context, objectID, cardPath string, sizeHint types.Vec3) (*AssetResult, error) {
	card, err := os.ReadFile(cardPath)
	if err != nil {
		return nil, types.WrapError(types.ErrFileNotFound, "meshgen", err)
	}
	return c.run(ctx, objectID, &submitRequest{
		ObjectID:  objectID,
		ImageB64:  base64.StdEncoding.EncodeToString(card),
		SizeHintM: []float64{sizeHint.X, sizeHint.Y, sizeHint.Z},
		Format:    string(types.FormatGLB),
	})
}

// GenerateFromDescription implements Client.
func (c *HTTPClient) GenerateFromDescription(ctx context.Context, objectID, text, style string) (*AssetResult, error) {
	prompt := text
	if style != "" {
		prompt = fmt.Sprintf("%s (style: %s)", text, style)
	}
	return c.run(ctx, objectID, &submitRequest{
		ObjectID: objectID,
		Prompt:   prompt,
		Format:   string(types.FormatGLB),
	})
}

func (c *HTTPClient) run(ctx context.Context, objectID string, req *submitRequest) (*AssetResult, error) {
	job, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	logging.Assets("Submitted 3D job %s for %s", job, objectID)

	final, err := c.await(ctx, job)
	if err != nil {
		return nil, err
	}
	if final.Status == "failed" {
		return nil, types.NewError(types.ErrAssetGeneration, "meshgen",
			fmt.Sprintf("3D job %s failed: %s", job, final.Error)).
			WithDetail("upstream_job_id", job)
	}

	path, size, err := c.download(ctx, final.AssetURL)
	if err != nil {
		return nil, err
	}
	format := types.AssetFormat(final.Format)
	if !types.ValidFormat(format) {
		format = types.FormatGLB
	}
	return &AssetResult{
		ObjectID: objectID,
		MeshFile: path,
		Format:   format,
		Bytes:    size,
		Checksum: final.Checksum,
		Metadata: map[string]any{"job_id": job},
	}, nil
}

func (c *HTTPClient) submit(ctx context.Context, req *submitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", types.WrapError(types.ErrInternal, "meshgen", err)
	}
	var status jobStatus
	if err := c.do(ctx, http.MethodPost, c.base+"/v1/generations", bytes.NewReader(body), &status); err != nil {
		return "", err
	}
	if status.JobID == "" {
		return "", types.NewError(types.ErrUpstreamRefused, "meshgen",
			"3D service accepted the request but returned no job id")
	}
	return status.JobID, nil
}

// await polls the job until it settles. Consecutive poll failures up to the
// configured cap are tolerated as transient.
func (c *HTTPClient) await(ctx context.Context, jobID string) (*jobStatus, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var status jobStatus
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/generations/%s", c.base, jobID), nil, &status)
		if err != nil {
			consecutive++
			if consecutive >= c.errMax {
				return nil, types.WrapError(types.ErrUpstreamTransport, "meshgen",
					fmt.Errorf("polling job %s failed %d times in a row: %w", jobID, consecutive, err))
			}
			continue
		}
		consecutive = 0

		switch status.Status {
		case "succeeded", "failed":
			return &status, nil
		case "queued", "running":
			logging.AssetsDebug("3D job %s still %s", jobID, status.Status)
		default:
			return nil, types.NewError(types.ErrUpstreamRefused, "meshgen",
				fmt.Sprintf("3D job %s reported unknown status %q", jobID, status.Status))
		}
	}
}

func (c *HTTPClient) download(ctx context.Context, url string) (string, int64, error) {
	if url == "" {
		return "", 0, types.NewError(types.ErrAssetGeneration, "meshgen",
			"3D job succeeded but returned no asset URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, types.WrapError(types.ErrInternal, "meshgen", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, types.WrapError(types.ErrUpstreamTransport, "meshgen", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, classifyHTTPStatus(resp.StatusCode, "asset download")
	}

	tmp, err := os.CreateTemp("", "sceneforge-mesh-*")
	if err != nil {
		return "", 0, types.WrapError(types.ErrFilePermission, "meshgen", err)
	}
	size, err := io.Copy(tmp, resp.Body)
	cerr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, types.WrapError(types.ErrUpstreamTransport, "meshgen", err)
	}
	if cerr != nil {
		os.Remove(tmp.Name())
		return "", 0, types.WrapError(types.ErrDiskSpace, "meshgen", cerr)
	}
	return tmp.Name(), size, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, out *jobStatus) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return types.WrapError(types.ErrInternal, "meshgen", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return types.WrapError(types.ErrUpstreamTransport, "meshgen", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return classifyHTTPStatus(resp.StatusCode, method+" "+url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func classifyHTTPStatus(code int, op string) error {
	msg := fmt.Sprintf("%s returned HTTP %d", op, code)
	switch {
	case code == http.StatusTooManyRequests:
		return types.NewError(types.ErrUpstreamRateLimited, "meshgen", msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return types.NewError(types.ErrUpstreamAuth, "meshgen", msg)
	case code >= 500:
		return types.NewError(types.ErrUpstreamTransport, "meshgen", msg)
	default:
		return types.NewError(types.ErrUpstreamRefused, "meshgen", msg)
	}
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trajcut/trajcut-agent/internal/trajectory"
)

const maxErrorBody = 4096

// HTTPClient talks to the stabilization service over JSON POST endpoints
// named after each operation.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// post sends in as JSON to /op and returns the raw response body of a 2xx
// answer. Any other status becomes a *RequestError.
func (c *HTTPClient) post(ctx context.Context, op string, in any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trajcut-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.logger.Debug("service request", "op", op, "request_id", requestID, "body_bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("service request failed",
			"op", op,
			"request_id", requestID,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Body: errorMessage(raw)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	c.logger.Info("service request finished",
		"op", op,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_bytes", len(respBody),
	)
	return respBody, nil
}

// errorMessage extracts the service's {"error": ...} message when present.
func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(raw)
}

func (c *HTTPClient) call(ctx context.Context, op string, in, out any) error {
	body, err := c.post(ctx, op, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) OpenProject(ctx context.Context, name string) (*Project, error) {
	body, err := c.post(ctx, "open_project", openProjectRequest{ProjectName: name})
	if err != nil {
		return nil, err
	}
	p, err := decodeProject(bytes.NewReader(body), name)
	if err != nil {
		return nil, fmt.Errorf("decode open_project response: %w", err)
	}
	return p, nil
}

// decodeProject reads the slug-keyed clip object while keeping key order,
// which is the library display order.
func decodeProject(r io.Reader, name string) (*Project, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	p := &Project{Name: name}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		slug, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected clip name, got %v", tok)
		}
		var b ClipBundle
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("clip %s: %w", slug, err)
		}
		b.Slug = slug
		p.Clips = append(p.Clips, b)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *HTTPClient) Stabilize(ctx context.Context, req StabilizeRequest) (*StabilizeResponse, error) {
	var out StabilizeResponse
	if err := c.call(ctx, "stabilize_video", req.wire(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CancelStabilization(ctx context.Context, slug string) (*CancelResponse, error) {
	var out CancelResponse
	if err := c.call(ctx, "cancel_stabilization", videoRequest{VideoName: slug}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) MaxStabilizationStrength(ctx context.Context, slug string, startPercent, endPercent float64) (int, error) {
	var out strengthResponse
	in := strengthRequest{VideoName: slug, StartPercent: startPercent, EndPercent: endPercent}
	if err := c.call(ctx, "get_maximum_stabilization_strength", in, &out); err != nil {
		return 0, err
	}
	return out.Max, nil
}

func (c *HTTPClient) PoseAtProgress(ctx context.Context, slug string, percent float64) (trajectory.Pose, error) {
	var out poseResponse
	if err := c.call(ctx, "get_pos_and_rot_at_progress_percent", poseRequest{VideoName: slug, Percent: percent}, &out); err != nil {
		return trajectory.Pose{}, err
	}
	pose, err := trajectory.PoseFromRaw(out.Pos, out.Rot)
	if err != nil {
		return trajectory.Pose{}, fmt.Errorf("decode pose: %w", err)
	}
	return pose, nil
}

func (c *HTTPClient) Concatenate(ctx context.Context, order []string) (*ConcatResponse, error) {
	var out ConcatResponse
	if err := c.call(ctx, "concatenate_video", concatRequest{Order: order}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RenderFinalVideo(ctx context.Context, name string, order []string) (string, error) {
	var out renderResponse
	if err := c.call(ctx, "render_final_video", renderRequest{FinalVideoName: name, Order: order}, &out); err != nil {
		return "", err
	}
	return out.Msg, nil
}

func (c *HTTPClient) SuggestClips(ctx context.Context, picked []string) ([]string, error) {
	var out suggestResponse
	if err := c.call(ctx, "suggest_clips", suggestRequest{PickedVideos: picked}, &out); err != nil {
		return nil, err
	}
	return out.PickedVideos, nil
}

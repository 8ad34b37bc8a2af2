// Package fusion talks to the external fusion engines that blend a heritage
// track with a modern style track.
package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"echoheritage/logger"
)

// EngineStatus is the health of one configured engine.
type EngineStatus struct {
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Client balances fusion requests over the configured engine URLs.
type Client struct {
	engineURLs []string
	httpClient *http.Client
}

// NewClient creates a client for the given engine base URLs.
func NewClient(engineURLs []string) *Client {
	return &Client{
		engineURLs: engineURLs,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Health probes every configured engine's /health endpoint.
func (c *Client) Health(ctx context.Context) []EngineStatus {
	statuses := make([]EngineStatus, 0, len(c.engineURLs))
	for _, base := range c.engineURLs {
		statuses = append(statuses, c.probe(ctx, base))
	}
	return statuses
}

func (c *Client) probe(ctx context.Context, base string) EngineStatus {
	status := EngineStatus{URL: base}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		return status
	}

	status.Healthy = true
	return status
}

// Params are the optional synthesis knobs forwarded to the engine.
type Params struct {
	Gate     *float64
	Clarity  *float64
	Strength *float64
	Temp     *float64
}

// Fuse sends the melody and style audio to the first healthy engine and
// returns the fused audio bytes. Engines are tried in configured order.
func (c *Client) Fuse(ctx context.Context, melody, style []byte, params Params) ([]byte, error) {
	if len(c.engineURLs) == 0 {
		return nil, fmt.Errorf("no fusion engines configured")
	}

	var lastErr error
	for _, base := range c.engineURLs {
		if st := c.probe(ctx, base); !st.Healthy {
			logger.Warn("skipping unhealthy fusion engine",
				logger.String("engine", base),
				logger.String("detail", st.Detail))
			lastErr = fmt.Errorf("engine %s unhealthy: %s", base, st.Detail)
			continue
		}

		out, err := c.fuseOn(ctx, base, melody, style, params)
		if err != nil {
			logger.Error("fusion engine request failed",
				logger.String("engine", base),
				logger.ErrorField(err))
			lastErr = err
			continue
		}
		return out, nil
	}

	return nil, fmt.Errorf("all fusion engines failed: %w", lastErr)
}

func (c *Client) fuseOn(ctx context.Context, base string, melody, style []byte, params Params) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	mw, err := writer.CreateFormFile("melody", "melody.wav")
	if err != nil {
		return nil, fmt.Errorf("building melody part: %w", err)
	}
	if _, err := mw.Write(melody); err != nil {
		return nil, fmt.Errorf("writing melody part: %w", err)
	}

	sw, err := writer.CreateFormFile("style", "style.wav")
	if err != nil {
		return nil, fmt.Errorf("building style part: %w", err)
	}
	if _, err := sw.Write(style); err != nil {
		return nil, fmt.Errorf("writing style part: %w", err)
	}

	writeParam := func(name string, v *float64) error {
		if v == nil {
			return nil
		}
		return writer.WriteField(name, fmt.Sprintf("%g", *v))
	}
	for name, v := range map[string]*float64{
		"gate":     params.Gate,
		"clarity":  params.Clarity,
		"strength": params.Strength,
		"temp":     params.Temp,
	} {
		if err := writeParam(name, v); err != nil {
			return nil, fmt.Errorf("writing %s field: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/fuse", &body)
	if err != nil {
		return nil, fmt.Errorf("building fuse request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fuse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading fused audio: %w", err)
	}

	logger.Info("fusion engine completed",
		logger.String("engine", base),
		logger.Int("outputBytes", len(out)),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

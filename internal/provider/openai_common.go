package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// apiErrorResponse is the error envelope returned by OpenAI-compatible APIs
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// endpointURL joins the configured base endpoint and an API path
func endpointURL(base, path string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(path, "/")
}

// parseTimeout reads options.timeout (seconds), falling back to def
func parseTimeout(options map[string]string, def time.Duration) time.Duration {
	if timeoutStr, ok := options["timeout"]; ok {
		var timeoutSec int
		if _, err := fmt.Sscanf(timeoutStr, "%d", &timeoutSec); err == nil && timeoutSec > 0 {
			return time.Duration(timeoutSec) * time.Second
		}
	}
	return def
}

// apiError converts a non-200 response body into an error
func apiError(log zerolog.Logger, status int, body []byte) error {
	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		log.Warn().
			Int("status", status).
			Str("type", errResp.Error.Type).
			Str("code", errResp.Error.Code).
			Msg(errResp.Error.Message)
		return fmt.Errorf("API error (status %d): %s", status, errResp.Error.Message)
	}
	log.Warn().Int("status", status).Str("body", truncateForLog(string(body), 500)).Msg("API request failed")
	return fmt.Errorf("API request failed with status %d: %s", status, truncateForLog(string(body), 200))
}

// pingModels checks that the endpoint is reachable and the key accepted
func pingModels(ctx context.Context, client *http.Client, log zerolog.Logger, endpoint, apiKey string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(endpoint, "models"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach endpoint: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Endpoint health check")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apiError(log, resp.StatusCode, body)
	}
	return nil
}

// truncateForLog truncates a string for logging purposes
func truncateForLog(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Package hf implements the image generator against the Hugging Face
// Inference API (text-to-image).
package hf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTarget = "https://api-inference.huggingface.co"
	defaultModel  = "stabilityai/stable-diffusion-xl-base-1.0"
)

// Generator calls a Hugging Face text-to-image inference endpoint and
// returns the rendered image as a data URI.
type Generator struct {
	target     string
	model      string
	apiKey     string
	httpClient *http.Client
}

// New creates a Generator. Empty target and model fall back to the public
// inference host and a default diffusion model.
func New(target, model, apiKey string, httpClient *http.Client) *Generator {
	if target == "" {
		target = defaultTarget
	}
	if model == "" {
		model = defaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Generator{
		target:     target,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type inferenceError struct {
	Error string `json:"error"`
}

// Generate renders one image for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(inferenceRequest{Inputs: prompt})
	if err != nil {
		return "", fmt.Errorf("encoding inference request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", g.target, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ie inferenceError
		if json.Unmarshal(body, &ie) == nil && ie.Error != "" {
			return "", fmt.Errorf("inference returned status %d: %s", resp.StatusCode, ie.Error)
		}
		return "", fmt.Errorf("inference returned status %d", resp.StatusCode)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/png"
	}

	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(body)), nil
}

// Package openai implements a chat client for OpenAI-compatible Chat
// Completions endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumonlabs/aria/pkg/llm"
)

const defaultTarget = "https://api.openai.com"

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	target     string
	apiKey     string
	httpClient *http.Client
}

// New creates an OpenAI client. An empty target falls back to the public
// OpenAI API host, which also lets the client drive any compatible gateway.
func New(target, apiKey string, httpClient *http.Client) *Client {
	if target == "" {
		target = defaultTarget
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		target:     target,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) Name() string {
	return "openai"
}

// Chat performs a single non-streaming chat completions round-trip.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w: %w", llm.ErrModelUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading openai response: %w: %w", llm.ErrModelUnavailable, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d: %w: %s", httpResp.StatusCode, llm.ErrModelUnavailable, string(respBody))
	}

	var parsed openaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error: %w: %s", llm.ErrModelUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices: %w", llm.ErrModelUnavailable)
	}

	return convertResponse(&parsed), nil
}

// buildRequest converts the internal request into OpenAI's wire format.
func buildRequest(req *llm.ChatRequest) *openaiRequest {
	out := &openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		converted := openaiMessage{Role: msg.Role}

		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				converted.Content += block.Text
			case "tool_use":
				args, _ := json.Marshal(block.ToolInput)
				tc := openaiToolCall{ID: block.ToolUseID, Type: "function"}
				tc.Function.Name = block.ToolName
				tc.Function.Arguments = string(args)
				converted.ToolCalls = append(converted.ToolCalls, tc)
			case "tool_result":
				output, _ := json.Marshal(block.ToolOutput)
				converted.Role = "tool"
				converted.ToolCallID = block.ToolResultID
				converted.Content = string(output)
			}
		}

		out.Messages = append(out.Messages, converted)
	}

	for _, t := range req.Tools {
		tool := openaiTool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, tool)
	}

	return out
}

func convertResponse(parsed *openaiResponse) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Model:     parsed.Model,
		CreatedAt: time.Unix(parsed.Created, 0).UTC(),
		Message:   llm.Message{Role: "assistant"},
	}

	choice := parsed.Choices[0]
	if choice.Message.Content != "" {
		resp.Message.Content = append(resp.Message.Content, llm.ContentBlock{
			Type: "text",
			Text: choice.Message.Content,
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.Message.Content = append(resp.Message.Content, llm.ContentBlock{
			Type:      "tool_use",
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: decodeArgs(tc.Function.Arguments),
		})
	}

	resp.StopReason = choice.FinishReason
	if len(choice.Message.ToolCalls) > 0 {
		resp.StopReason = "tool_use"
	}

	if parsed.Usage != nil {
		resp.Usage = &llm.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}

	return resp
}

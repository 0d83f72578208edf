// Package gemini implements a chat client for the Google Generative
// Language REST API (generateContent).
package gemini

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

const defaultTarget = "https://generativelanguage.googleapis.com"

// Client calls the Gemini generateContent endpoint.
type Client struct {
	target     string
	apiKey     string
	httpClient *http.Client
}

// New creates a Gemini client. An empty target falls back to the public
// Generative Language API host.
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
	return "gemini"
}

// Chat performs a single non-streaming generateContent round-trip.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.target, req.Model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w: %w", llm.ErrModelUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gemini response: %w: %w", llm.ErrModelUnavailable, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %w: %s", httpResp.StatusCode, llm.ErrModelUnavailable, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini error %d: %w: %s", parsed.Error.Code, llm.ErrModelUnavailable, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates: %w", llm.ErrModelUnavailable)
	}

	return convertResponse(req.Model, &parsed), nil
}

// buildRequest converts the internal request into Gemini's wire format.
// System messages fold into system_instruction; tool_use and tool_result
// blocks become functionCall and functionResponse parts.
func buildRequest(req *llm.ChatRequest) *geminiRequest {
	out := &geminiRequest{}

	if req.System != "" {
		out.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}

	// Gemini wants the tool name on functionResponse parts; tool_result
	// blocks only reference the tool_use id, so index names by id first.
	toolNames := make(map[string]string)
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			if block.Type == "tool_use" {
				toolNames[block.ToolUseID] = block.ToolName
			}
		}
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if out.SystemInstruction == nil {
				out.SystemInstruction = &geminiContent{
					Parts: []geminiPart{{Text: msg.GetText()}},
				}
			}
			continue
		}

		content := geminiContent{Role: roleFor(msg.Role)}
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				content.Parts = append(content.Parts, geminiPart{Text: block.Text})
			case "tool_use":
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{
						Name: block.ToolName,
						Args: block.ToolInput,
					},
				})
			case "tool_result":
				content.Parts = append(content.Parts, geminiPart{
					FunctionResponse: &geminiFunctionResp{
						Name:     toolNames[block.ToolResultID],
						Response: block.ToolOutput,
					},
				})
			}
		}
		if len(content.Parts) > 0 {
			out.Contents = append(out.Contents, content)
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		out.Tools = []geminiTools{{FunctionDeclarations: decls}}
		out.ToolConfig = &geminiToolConfig{
			FunctionCallingConfig: geminiFunctionCallingConfig{Mode: "AUTO"},
		}
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		out.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	return out
}

func roleFor(role string) string {
	switch role {
	case "assistant":
		return "model"
	case "tool":
		return "function"
	default:
		return "user"
	}
}

func convertResponse(model string, parsed *geminiResponse) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Model:     model,
		CreatedAt: time.Now().UTC(),
		Message:   llm.Message{Role: "assistant"},
	}

	candidate := parsed.Candidates[0]
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			resp.Message.Content = append(resp.Message.Content, llm.ContentBlock{
				Type:      "tool_use",
				ToolUseID: part.FunctionCall.Name, // Gemini has no call id; the name is stable per turn
				ToolName:  part.FunctionCall.Name,
				ToolInput: part.FunctionCall.Args,
			})
			resp.StopReason = "tool_use"
		case part.Text != "":
			resp.Message.Content = append(resp.Message.Content, llm.ContentBlock{
				Type: "text",
				Text: part.Text,
			})
		}
	}

	if resp.StopReason == "" {
		resp.StopReason = "stop"
	}

	if parsed.UsageMetadata != nil {
		resp.Usage = &llm.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		}
	}

	return resp
}

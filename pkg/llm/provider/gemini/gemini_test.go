package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lumonlabs/aria/pkg/llm"
	"github.com/lumonlabs/aria/pkg/llm/provider/gemini"
)

// capturedRequest mirrors the generateContent wire shape for assertions on
// what the client actually sent.
type capturedRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text         string `json:"text"`
			FunctionCall *struct {
				Name string         `json:"name"`
				Args map[string]any `json:"args"`
			} `json:"functionCall"`
			FunctionResponse *struct {
				Name     string         `json:"name"`
				Response map[string]any `json:"response"`
			} `json:"functionResponse"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"system_instruction"`
	Tools []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"function_declarations"`
	} `json:"tools"`
}

var _ = Describe("Client", func() {
	It("returns 'gemini' as its name", func() {
		c := gemini.New("", "", nil)
		Expect(c.Name()).To(Equal("gemini"))
	})

	Describe("Chat", func() {
		Context("with a text response", func() {
			var (
				captured capturedRequest
				rawURL   string
			)

			newServer := func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					rawURL = r.URL.String()
					body, _ := io.ReadAll(r.Body)
					_ = json.Unmarshal(body, &captured)

					w.Header().Set("Content-Type", "application/json")
					_, _ = w.Write([]byte(`{
						"candidates": [{
							"content": {"role": "model", "parts": [{"text": "Hello there!"}]},
							"finishReason": "STOP"
						}],
						"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 4, "totalTokenCount": 14}
					}`))
				}))
			}

			It("posts to the model's generateContent endpoint with the api key", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(rawURL).To(ContainSubstring("/v1beta/models/gemini-2.0-flash:generateContent"))
				Expect(rawURL).To(ContainSubstring("key=key-123"))
			})

			It("converts the response into an assistant message", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				resp, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(resp.Message.Role).To(Equal("assistant"))
				Expect(resp.Message.GetText()).To(Equal("Hello there!"))
				Expect(resp.StopReason).To(Equal("stop"))
				Expect(resp.Usage).NotTo(BeNil())
				Expect(resp.Usage.TotalTokens).To(Equal(14))
			})

			It("maps roles to Gemini's conventions", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model: "gemini-2.0-flash",
					Messages: []llm.Message{
						llm.NewTextMessage("user", "Hi!"),
						llm.NewTextMessage("assistant", "Hello!"),
						llm.NewTextMessage("user", "How are you?"),
					},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(captured.Contents).To(HaveLen(3))
				Expect(captured.Contents[0].Role).To(Equal("user"))
				Expect(captured.Contents[1].Role).To(Equal("model"))
				Expect(captured.Contents[2].Role).To(Equal("user"))
			})

			It("folds the system prompt into system_instruction", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					System:   "You are aria.",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(captured.SystemInstruction).NotTo(BeNil())
				Expect(captured.SystemInstruction.Parts[0].Text).To(Equal("You are aria."))
			})

			It("converts tool definitions into function declarations", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Draw a tree")},
					Tools: []llm.ToolDefinition{
						{Name: "generate_image", Description: "Render an image"},
					},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(captured.Tools).To(HaveLen(1))
				Expect(captured.Tools[0].FunctionDeclarations).To(HaveLen(1))
				Expect(captured.Tools[0].FunctionDeclarations[0].Name).To(Equal("generate_image"))
			})

			It("carries the tool name onto functionResponse parts", func() {
				server := newServer()
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model: "gemini-2.0-flash",
					Messages: []llm.Message{
						llm.NewTextMessage("user", "Draw a tree"),
						llm.NewToolUseMessage("generate_image", "generate_image", map[string]any{"prompt": "a tree"}),
						llm.NewToolResultMessage("generate_image", map[string]any{"job_id": "j-1"}, false),
					},
				})
				Expect(err).NotTo(HaveOccurred())

				last := captured.Contents[len(captured.Contents)-1]
				Expect(last.Role).To(Equal("function"))
				Expect(last.Parts[0].FunctionResponse).NotTo(BeNil())
				Expect(last.Parts[0].FunctionResponse.Name).To(Equal("generate_image"))
				Expect(last.Parts[0].FunctionResponse.Response).To(HaveKeyWithValue("job_id", "j-1"))
			})
		})

		Context("with a function call response", func() {
			It("converts the call into a tool_use block", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					_, _ = w.Write([]byte(`{
						"candidates": [{
							"content": {
								"role": "model",
								"parts": [{"functionCall": {"name": "generate_image", "args": {"prompt": "a sunset"}}}]
							},
							"finishReason": "STOP"
						}]
					}`))
				}))
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				resp, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Draw a sunset")},
				})
				Expect(err).NotTo(HaveOccurred())

				use := resp.Message.ToolUse()
				Expect(use).NotTo(BeNil())
				Expect(use.ToolName).To(Equal("generate_image"))
				Expect(use.ToolInput).To(HaveKeyWithValue("prompt", "a sunset"))
				Expect(resp.StopReason).To(Equal("tool_use"))
			})
		})

		Context("with provider failures", func() {
			It("returns an error for a non-200 status", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = w.Write([]byte(`{"error": {"code": 503, "message": "overloaded"}}`))
				}))
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("503"))
				Expect(err).To(MatchError(llm.ErrModelUnavailable))
			})

			It("returns an error for an error payload", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "invalid argument", "status": "INVALID_ARGUMENT"}}`))
				}))
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid argument"))
				Expect(err).To(MatchError(llm.ErrModelUnavailable))
			})

			It("returns an error when there are no candidates", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					_, _ = w.Write([]byte(`{"candidates": []}`))
				}))
				defer server.Close()

				c := gemini.New(server.URL, "key-123", server.Client())
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("no candidates"))
				Expect(err).To(MatchError(llm.ErrModelUnavailable))
			})

			It("marks transport failures as model unavailability", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
				server.Close() // connection refused from here on

				c := gemini.New(server.URL, "key-123", nil)
				_, err := c.Chat(context.Background(), &llm.ChatRequest{
					Model:    "gemini-2.0-flash",
					Messages: []llm.Message{llm.NewTextMessage("user", "Hi!")},
				})
				Expect(err).To(MatchError(llm.ErrModelUnavailable))
			})
		})
	})
})

// Package chatcmder provides the chat command for interactive sessions
// against a running aria server.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lumonlabs/aria/pkg/cliui"
	"github.com/lumonlabs/aria/pkg/config"
	"github.com/lumonlabs/aria/pkg/dotdir"
	"github.com/lumonlabs/aria/pkg/logger"
	"github.com/lumonlabs/aria/pkg/sse"
	"github.com/lumonlabs/aria/pkg/stream"
	"github.com/lumonlabs/aria/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("aria> ")
)

type chatCommander struct {
	apiTarget string
	fresh     bool
	debug     bool

	logger *slog.Logger
}

// chatRequest is the body sent to the server's streaming chat endpoint.
type chatRequest struct {
	SessionID string        `json:"session_id"`
	Messages  []chatMessage `json:"messages"`
}

// chatMessage is one transcript entry.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const chatLongDesc string = `Start an interactive chat session against a running aria server.

The chat command streams each assistant reply as it is produced. If a
session state exists (from a previous chat), the conversation resumes
with the full transcript; use --fresh to discard it and start over.

Examples:
  aria chat
  aria chat --fresh
  aria chat --api-target http://localhost:8080`

const chatShortDesc string = "Interactive chat against a running aria server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Aria API server URL")
	cmd.Flags().BoolVar(&cmder.fresh, "fresh", false, "Discard the saved session and start a new conversation")
	cmd.Flags().String("config-dir", "", "Override the .aria/ config directory")

	return cmd
}

func (c *chatCommander) run() error {
	dotdirManager := dotdir.NewManager()
	c.logger = c.newLogger(dotdirManager)

	if c.fresh {
		if err := dotdirManager.ClearSession(""); err != nil {
			return fmt.Errorf("clearing session state: %w", err)
		}
	}

	session, err := dotdirManager.LoadSessionState("")
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	var messages []chatMessage
	sessionID := uuid.NewString()
	fmt.Println()
	if session != nil {
		sessionID = session.SessionID
		fmt.Printf("  %s Resuming session %s %s\n",
			cliui.SuccessMark,
			cliui.ValueStyle.Render(utils.Truncate(sessionID, 8)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(session.Messages))),
		)
		for _, msg := range session.Messages {
			messages = append(messages, chatMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	} else {
		fmt.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}
		if input == "/help" {
			printHelp()
			continue
		}

		messages = append(messages, chatMessage{
			Role:    "user",
			Content: input,
		})

		turnStart := time.Now()
		assistantContent, err := c.sendAndStream(sessionID, messages)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			// Remove the failed user message so we can retry
			messages = messages[:len(messages)-1]
			continue
		}

		messages = append(messages, chatMessage{
			Role:    "assistant",
			Content: assistantContent,
		})

		c.saveSession(dotdirManager, sessionID, messages)

		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(time.Since(turnStart)))))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

const replHelp = `# Chat commands

| Command | Effect |
|---------|--------|
| /help   | Show this help |
| /exit   | End the session (the transcript is saved) |

Replies stream as the server produces them. Image requests run in the
background; the reply includes a job id you can poll with the jobs API.`

func printHelp() {
	rendered, err := cliui.RenderMarkdown(replHelp)
	if err != nil {
		fmt.Println(replHelp)
		return
	}
	fmt.Print(rendered)
}

// sendAndStream sends one turn to the server and prints frames as they
// arrive. Returns the full assistant response text.
func (c *chatCommander) sendAndStream(sessionID string, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		SessionID: sessionID,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending chat request",
		"api_target", c.apiTarget,
		"session_id", sessionID,
		"message_count", len(messages),
	)

	url := c.apiTarget + "/v1/chat/stream"
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		// Turns can take a while when tools are involved
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	fmt.Print(assistantPrompt)

	var fullContent strings.Builder
	reader := sse.NewReader(resp.Body)

	for {
		event, err := reader.Next()
		if err != nil {
			return fullContent.String(), fmt.Errorf("reading stream: %w", err)
		}
		if event == nil {
			// Source exhausted without a sentinel; treat as done.
			break
		}

		if event.Data == stream.Sentinel {
			break
		}

		var frame stream.Frame
		if err := json.Unmarshal([]byte(event.Data), &frame); err != nil {
			c.logger.Debug("failed to parse stream frame", "error", err, "data", event.Data)
			continue
		}

		if frame.Error != "" {
			return fullContent.String(), errors.New(frame.Error)
		}
		if frame.Content != "" {
			fmt.Print(frame.Content)
			fullContent.WriteString(frame.Content)
		}
	}

	return fullContent.String(), nil
}

func (c *chatCommander) saveSession(m *dotdir.Manager, sessionID string, messages []chatMessage) {
	state := &dotdir.SessionState{
		SessionID: sessionID,
		Messages:  make([]dotdir.SessionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		state.Messages = append(state.Messages, dotdir.SessionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if err := m.SaveSession(state, ""); err != nil {
		c.logger.Warn("failed to save session state", "error", err)
	}
}

// newLogger builds the CLI logger: pretty terminal output, plus a JSON log
// file under the .aria/ directory when --debug is set.
func (c *chatCommander) newLogger(m *dotdir.Manager) *slog.Logger {
	pretty := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	if !c.debug {
		return pretty
	}

	target, err := m.Target("")
	if err != nil {
		return pretty
	}
	f, err := os.OpenFile(filepath.Join(target, "chat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return pretty
	}

	file := logger.New(
		logger.WithDebug(true),
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithSource(true),
	)
	return logger.Multi(pretty, file)
}

package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/llm"
	"github.com/lumonlabs/aria/pkg/moderation"
	"github.com/lumonlabs/aria/pkg/orchestrator"
	"github.com/lumonlabs/aria/pkg/policy"
	"github.com/lumonlabs/aria/pkg/stream"
	"github.com/lumonlabs/aria/pkg/tools"
)

// countingGate wraps a verdict (or error) and counts classifications.
type countingGate struct {
	verdict moderation.Verdict
	err     error
	calls   int
}

func (g *countingGate) Classify(context.Context, string) (moderation.Verdict, error) {
	g.calls++
	return g.verdict, g.err
}

// scriptedClient returns canned responses in order and records requests.
type scriptedClient struct {
	responses []*llm.ChatResponse
	err       error
	requests  []*llm.ChatRequest
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// capturingPublisher records published turn events.
type capturingPublisher struct {
	turnEvents []*eventstream.TurnCompletedEvent
}

func (p *capturingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnCompletedEvent) error {
	p.turnEvents = append(p.turnEvents, e)
	return nil
}

func (p *capturingPublisher) PublishJob(context.Context, *eventstream.JobFinishedEvent) error {
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:    llm.NewTextMessage("assistant", text),
		StopReason: "stop",
	}
}

func toolUseResponse(id, name string, input map[string]any) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:    llm.NewToolUseMessage(id, name, input),
		StopReason: "tool_use",
	}
}

// parseFrames splits the emitter's raw SSE output into data payloads.
func parseFrames(raw string) []string {
	var payloads []string
	for _, block := range strings.Split(raw, "\n\n") {
		if data, ok := strings.CutPrefix(block, "data: "); ok {
			payloads = append(payloads, data)
		}
	}
	return payloads
}

var _ = Describe("Orchestrator", func() {
	var (
		gate     *countingGate
		client   *scriptedClient
		registry *tools.Registry
		table    *policy.Table
		events   *capturingPublisher
		cfg      orchestrator.Config
		buf      *strings.Builder
		ctx      context.Context
	)

	BeforeEach(func() {
		gate = &countingGate{verdict: moderation.Clean()}
		client = &scriptedClient{}
		registry = tools.NewRegistry(zap.NewNop())
		table = policy.NewAdminTable([]string{"admin-1"})
		events = &capturingPublisher{}
		cfg = orchestrator.Config{Model: "test-model"}
		buf = &strings.Builder{}
		ctx = context.Background()
	})

	run := func(turn orchestrator.Turn) orchestrator.State {
		orch, err := orchestrator.New(gate, client, registry, table, events, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return orch.Run(ctx, turn, stream.NewEmitter(buf))
	}

	userTurn := func(text string) orchestrator.Turn {
		return orchestrator.Turn{
			SessionID:    "session-1",
			RequesterID:  "user-1",
			Messages:     []llm.Message{llm.NewTextMessage("user", text)},
			ToolsEnabled: true,
		}
	}

	Context("with a clean message and a direct answer", func() {
		BeforeEach(func() {
			client.responses = []*llm.ChatResponse{textResponse("Hello there!")}
		})

		It("streams the answer as one content frame followed by the sentinel", func() {
			state := run(userTurn("hi"))
			Expect(state).To(Equal(orchestrator.StateDone))

			frames := parseFrames(buf.String())
			Expect(frames).To(Equal([]string{`{"content":"Hello there!"}`, stream.Sentinel}))
		})

		It("classifies before the model call", func() {
			run(userTurn("hi"))
			Expect(gate.calls).To(Equal(1))
			Expect(client.requests).To(HaveLen(1))
		})

		It("publishes a completed turn event", func() {
			run(userTurn("hi"))
			Expect(events.turnEvents).To(HaveLen(1))
			Expect(events.turnEvents[0].FinalState).To(Equal("done"))
			Expect(events.turnEvents[0].SessionID).To(Equal("session-1"))
			Expect(events.turnEvents[0].ToolRounds).To(Equal(0))
		})

		It("forwards tool definitions when the requester may use tools", func() {
			Expect(registry.Register(tools.NewGenerateImageTool(noopSpawner{}))).To(Succeed())
			run(userTurn("hi"))
			Expect(client.requests[0].Tools).To(HaveLen(1))
		})

		It("omits tool definitions when the turn disables tools", func() {
			Expect(registry.Register(tools.NewGenerateImageTool(noopSpawner{}))).To(Succeed())
			turn := userTurn("hi")
			turn.ToolsEnabled = false
			run(turn)
			Expect(client.requests[0].Tools).To(BeEmpty())
		})
	})

	Context("with a flagged message", func() {
		BeforeEach(func() {
			verdict, err := moderation.Flag("violence_severe", moderation.L3)
			Expect(err).NotTo(HaveOccurred())
			gate.verdict = verdict
		})

		It("blocks without ever calling the model", func() {
			state := run(userTurn("something terrible"))
			Expect(state).To(Equal(orchestrator.StateBlocked))
			Expect(client.requests).To(BeEmpty())
		})

		It("streams the canned refusal, not the blocked content", func() {
			run(userTurn("something terrible"))

			frames := parseFrames(buf.String())
			Expect(frames).To(HaveLen(2))

			var frame stream.Frame
			Expect(json.Unmarshal([]byte(frames[0]), &frame)).To(Succeed())
			Expect(frame.Content).To(Equal(moderation.Refusal("violence_severe")))
			Expect(frame.Content).NotTo(ContainSubstring("something terrible"))
		})

		It("records the blocked category on the turn event", func() {
			run(userTurn("something terrible"))
			Expect(events.turnEvents[0].FinalState).To(Equal("blocked"))
			Expect(events.turnEvents[0].BlockedCategory).To(Equal("violence_severe"))
		})
	})

	Context("when the requester holds the moderation bypass capability", func() {
		It("skips classification entirely", func() {
			client.responses = []*llm.ChatResponse{textResponse("ok")}
			turn := userTurn("hi")
			turn.RequesterID = "admin-1"

			state := run(turn)
			Expect(state).To(Equal(orchestrator.StateDone))
			Expect(gate.calls).To(BeZero())
		})
	})

	Context("when the moderation gate itself errors", func() {
		BeforeEach(func() {
			gate.err = errors.New("classifier offline")
			client.responses = []*llm.ChatResponse{textResponse("ok")}
		})

		It("proceeds by default", func() {
			state := run(userTurn("hi"))
			Expect(state).To(Equal(orchestrator.StateDone))
			Expect(client.requests).To(HaveLen(1))
		})

		It("blocks when configured fail-closed", func() {
			cfg.FailClosed = true
			state := run(userTurn("hi"))
			Expect(state).To(Equal(orchestrator.StateBlocked))
			Expect(client.requests).To(BeEmpty())
		})
	})

	Context("with a tool round", func() {
		BeforeEach(func() {
			Expect(registry.Register(&tools.Tool{
				Name:        "lookup",
				Description: "looks something up",
				Handler: func(context.Context, map[string]any) tools.Result {
					return tools.Result{
						Success:        true,
						Payload:        map[string]any{"answer": 42},
						UserFacingNote: "[[WIDGET:lookup]]",
					}
				},
			})).To(Succeed())

			client.responses = []*llm.ChatResponse{
				toolUseResponse("call-1", "lookup", map[string]any{"q": "meaning"}),
				textResponse("The answer is 42."),
			}
		})

		It("dispatches the tool and streams the follow-up answer", func() {
			state := run(userTurn("what is the meaning?"))
			Expect(state).To(Equal(orchestrator.StateDone))

			frames := parseFrames(buf.String())
			Expect(frames).To(Equal([]string{
				`{"content":"[[WIDGET:lookup]]"}`,
				`{"content":"The answer is 42."}`,
				stream.Sentinel,
			}))
		})

		It("feeds the tool result back to the model", func() {
			run(userTurn("what is the meaning?"))
			Expect(client.requests).To(HaveLen(2))

			followUp := client.requests[1].Messages
			Expect(followUp).To(HaveLen(3))
			Expect(followUp[1].ToolUse()).NotTo(BeNil())
			Expect(followUp[2].Role).To(Equal("tool"))
		})

		It("counts the round on the turn event", func() {
			run(userTurn("what is the meaning?"))
			Expect(events.turnEvents[0].ToolRounds).To(Equal(1))
		})

		It("annotates the dispatch context with the session and requester", func() {
			var session, requester string
			Expect(registry.Register(&tools.Tool{
				Name:        "whoami",
				Description: "echoes caller identity",
				Handler: func(ctx context.Context, _ map[string]any) tools.Result {
					session = tools.SessionFrom(ctx)
					requester = tools.RequesterFrom(ctx)
					return tools.Result{Success: true, Payload: map[string]any{}}
				},
			})).To(Succeed())

			client.responses = []*llm.ChatResponse{
				toolUseResponse("call-1", "whoami", nil),
				textResponse("done"),
			}

			run(userTurn("who am I?"))
			Expect(session).To(Equal("session-1"))
			Expect(requester).To(Equal("user-1"))
		})

		It("feeds failed tool results back instead of aborting", func() {
			client.responses = []*llm.ChatResponse{
				toolUseResponse("call-1", "no_such_tool", nil),
				textResponse("I could not look that up."),
			}

			state := run(userTurn("what is the meaning?"))
			Expect(state).To(Equal(orchestrator.StateDone))

			followUp := client.requests[1].Messages
			block := followUp[2].Content[0]
			Expect(block.IsError).To(BeTrue())
		})
	})

	Context("when the model keeps requesting tools past the bound", func() {
		BeforeEach(func() {
			Expect(registry.Register(&tools.Tool{
				Name:        "lookup",
				Description: "looks something up",
				Handler: func(context.Context, map[string]any) tools.Result {
					return tools.Result{Success: true, Payload: map[string]any{}}
				},
			})).To(Succeed())

			client.responses = []*llm.ChatResponse{
				toolUseResponse("call-1", "lookup", nil),
				toolUseResponse("call-2", "lookup", nil),
				textResponse("never reached"),
			}
		})

		It("ends the turn with an error frame", func() {
			state := run(userTurn("loop forever"))
			Expect(state).To(Equal(orchestrator.StateError))

			frames := parseFrames(buf.String())
			last := frames[len(frames)-2]
			var frame stream.Frame
			Expect(json.Unmarshal([]byte(last), &frame)).To(Succeed())
			Expect(frame.Error).NotTo(BeEmpty())

			// One round allowed: two model calls, no third.
			Expect(client.requests).To(HaveLen(2))
		})

		It("honors a higher configured bound", func() {
			cfg.MaxToolRounds = 2
			state := run(userTurn("loop forever"))
			Expect(state).To(Equal(orchestrator.StateDone))
			Expect(client.requests).To(HaveLen(3))
		})
	})

	Context("when the model call fails", func() {
		BeforeEach(func() {
			client.err = errors.New("dial tcp: connection refused")
		})

		It("streams a generic error frame without upstream details", func() {
			state := run(userTurn("hi"))
			Expect(state).To(Equal(orchestrator.StateError))

			frames := parseFrames(buf.String())
			var frame stream.Frame
			Expect(json.Unmarshal([]byte(frames[0]), &frame)).To(Succeed())
			Expect(frame.Error).NotTo(BeEmpty())
			Expect(frame.Error).NotTo(ContainSubstring("dial tcp"))
		})

		It("still closes the stream with the sentinel", func() {
			run(userTurn("hi"))
			Expect(strings.Count(buf.String(), stream.Sentinel)).To(Equal(1))
		})

		It("publishes an error turn event", func() {
			run(userTurn("hi"))
			Expect(events.turnEvents[0].FinalState).To(Equal("error"))
		})
	})

	Context("with an invalid turn", func() {
		It("rejects a turn whose last message is not from the user", func() {
			state := run(orchestrator.Turn{
				Messages: []llm.Message{llm.NewTextMessage("assistant", "hello?")},
			})
			Expect(state).To(Equal(orchestrator.StateError))
			Expect(client.requests).To(BeEmpty())
		})

		It("rejects an empty turn", func() {
			state := run(orchestrator.Turn{})
			Expect(state).To(Equal(orchestrator.StateError))
		})
	})
})

type noopSpawner struct{}

func (noopSpawner) Spawn(context.Context, string) (string, error) { return "job-1", nil }

var _ = Describe("State", func() {
	It("renders lifecycle names", func() {
		Expect(orchestrator.StateDone.String()).To(Equal("done"))
		Expect(orchestrator.StateBlocked.String()).To(Equal("blocked"))
		Expect(orchestrator.StateError.String()).To(Equal("error"))
	})

	It("marks blocked, done, and error as terminal", func() {
		Expect(orchestrator.StateBlocked.Terminal()).To(BeTrue())
		Expect(orchestrator.StateDone.Terminal()).To(BeTrue())
		Expect(orchestrator.StateError.Terminal()).To(BeTrue())
		Expect(orchestrator.StateModelCall.Terminal()).To(BeFalse())
	})
})

package tools_test

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/tools"
)

func echoTool(name string) *tools.Tool {
	return &tools.Tool{
		Name:        name,
		Description: "echoes its message argument",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"message": {Type: "string"},
			},
			Required: []string{"message"},
		},
		Handler: func(_ context.Context, args map[string]any) tools.Result {
			return tools.Result{
				Success: true,
				Payload: map[string]any{"echo": args["message"]},
			}
		},
	}
}

var _ = Describe("Registry", func() {
	var (
		registry *tools.Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		registry = tools.NewRegistry(zap.NewNop())
		ctx = context.Background()
	})

	Describe("Register", func() {
		It("rejects tools without a name", func() {
			err := registry.Register(&tools.Tool{
				Handler: func(context.Context, map[string]any) tools.Result { return tools.Result{} },
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects tools without a handler", func() {
			err := registry.Register(&tools.Tool{Name: "no_handler"})
			Expect(err).To(HaveOccurred())
		})

		It("rejects duplicate names", func() {
			Expect(registry.Register(echoTool("echo"))).To(Succeed())
			Expect(registry.Register(echoTool("echo"))).To(MatchError(ContainSubstring("already registered")))
		})
	})

	Describe("Definitions", func() {
		It("exports declarations for every registered tool", func() {
			Expect(registry.Register(echoTool("echo"))).To(Succeed())

			defs := registry.Definitions()
			Expect(defs).To(HaveLen(1))
			Expect(defs[0].Name).To(Equal("echo"))
			Expect(defs[0].Parameters).To(HaveKeyWithValue("type", "object"))
			Expect(defs[0].Parameters).To(HaveKey("properties"))
		})
	})

	Describe("Dispatch", func() {
		BeforeEach(func() {
			Expect(registry.Register(echoTool("echo"))).To(Succeed())
		})

		It("executes a valid call", func() {
			result := registry.Dispatch(ctx, tools.Call{
				Name:      "echo",
				Arguments: map[string]any{"message": "hi"},
			})
			Expect(result.Success).To(BeTrue())
			Expect(result.Payload).To(HaveKeyWithValue("echo", "hi"))
		})

		It("fails unknown tools without erroring the turn", func() {
			result := registry.Dispatch(ctx, tools.Call{Name: "nonexistent"})
			Expect(result.Success).To(BeFalse())
			Expect(result.UserFacingNote).To(Equal("unknown tool"))
		})

		It("fails calls that violate the schema", func() {
			result := registry.Dispatch(ctx, tools.Call{
				Name:      "echo",
				Arguments: map[string]any{"wrong_key": true},
			})
			Expect(result.Success).To(BeFalse())
			Expect(result.UserFacingNote).To(ContainSubstring("invalid arguments"))
		})

		It("treats nil arguments as an empty object", func() {
			result := registry.Dispatch(ctx, tools.Call{Name: "echo"})
			// Schema requires "message", so an empty object still fails
			// validation, cleanly.
			Expect(result.Success).To(BeFalse())
		})
	})
})

// stubSpawner records spawn calls.
type stubSpawner struct {
	jobID  string
	err    error
	prompt string
}

func (s *stubSpawner) Spawn(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.jobID, s.err
}

var _ = Describe("generate_image tool", func() {
	var (
		spawner  *stubSpawner
		registry *tools.Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		spawner = &stubSpawner{jobID: "job-123"}
		registry = tools.NewRegistry(zap.NewNop())
		Expect(registry.Register(tools.NewGenerateImageTool(spawner))).To(Succeed())
		ctx = context.Background()
	})

	It("spawns a job and returns immediately with its id", func() {
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": "a red fox"},
		})

		Expect(result.Success).To(BeTrue())
		Expect(spawner.prompt).To(Equal("a red fox"))
		Expect(result.Payload).To(HaveKeyWithValue("job_id", "job-123"))
		Expect(result.Payload).To(HaveKeyWithValue("status", "queued"))
	})

	It("instructs the model not to wait for the render", func() {
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": "a red fox"},
		})
		Expect(result.Payload["system_note"]).To(ContainSubstring("Do not say you are waiting"))
	})

	It("surfaces a widget marker for the client", func() {
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": "a red fox"},
		})
		Expect(result.UserFacingNote).To(ContainSubstring("[[WIDGET:progressive_image|"))
		Expect(result.UserFacingNote).To(ContainSubstring("job-123"))
	})

	It("emits the widget keys the frontend expects", func() {
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": "a red fox"},
		})
		Expect(result.UserFacingNote).To(ContainSubstring(`"jobId": "job-123"`))
		Expect(result.UserFacingNote).To(ContainSubstring(`"prompt": "a red fox"`))
	})

	It("fails cleanly when the spawner errors", func() {
		spawner.err = errors.New("store down")
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": "a red fox"},
		})
		Expect(result.Success).To(BeFalse())
	})

	It("rejects an empty prompt", func() {
		result := registry.Dispatch(ctx, tools.Call{
			Name:      "generate_image",
			Arguments: map[string]any{"prompt": ""},
		})
		Expect(result.Success).To(BeFalse())
	})
})

var _ = Describe("get_user_stats tool", func() {
	var (
		registry *tools.Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		registry = tools.NewRegistry(zap.NewNop())
		lookup := func(_ context.Context, requesterID string) (map[string]any, error) {
			if requesterID != "user-1" {
				return nil, errors.New("not found")
			}
			return map[string]any{"level": 3, "xp": 420}, nil
		}
		Expect(registry.Register(tools.NewUserStatsTool(lookup))).To(Succeed())
		ctx = context.Background()
	})

	It("looks up stats for the requester on the context", func() {
		result := registry.Dispatch(tools.WithRequester(ctx, "user-1"), tools.Call{Name: "get_user_stats"})
		Expect(result.Success).To(BeTrue())
		Expect(result.Payload).To(HaveKeyWithValue("level", 3))
	})

	It("fails when no requester is annotated", func() {
		result := registry.Dispatch(ctx, tools.Call{Name: "get_user_stats"})
		Expect(result.Success).To(BeFalse())
	})

	It("fails when the lookup errors", func() {
		result := registry.Dispatch(tools.WithRequester(ctx, "user-2"), tools.Call{Name: "get_user_stats"})
		Expect(result.Success).To(BeFalse())
	})
})

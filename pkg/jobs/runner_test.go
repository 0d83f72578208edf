package jobs_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/imagegen"
	"github.com/lumonlabs/aria/pkg/jobs"
	"github.com/lumonlabs/aria/pkg/jobs/inmemory"
	"github.com/lumonlabs/aria/pkg/tools"
)

// Runner is the spawner the generate_image tool talks to.
var _ tools.JobSpawner = (*jobs.Runner)(nil)

// capturingPublisher records published job events.
type capturingPublisher struct {
	jobEvents []*eventstream.JobFinishedEvent
}

func (p *capturingPublisher) PublishTurn(context.Context, *eventstream.TurnCompletedEvent) error {
	return nil
}

func (p *capturingPublisher) PublishJob(_ context.Context, e *eventstream.JobFinishedEvent) error {
	p.jobEvents = append(p.jobEvents, e)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

var _ = Describe("Runner", func() {
	var (
		store  *inmemory.Store
		events *capturingPublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		events = &capturingPublisher{}
		ctx = context.Background()
	})

	newRunner := func(gen imagegen.Generator, ceiling time.Duration) *jobs.Runner {
		runner, err := jobs.NewRunner(jobs.RunnerConfig{
			Store:        store,
			Generator:    gen,
			Ceiling:      ceiling,
			ProgressTick: 5 * time.Millisecond,
			Events:       events,
			Logger:       zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return runner
	}

	It("requires a store, generator, and logger", func() {
		_, err := jobs.NewRunner(jobs.RunnerConfig{})
		Expect(err).To(HaveOccurred())
	})

	Context("when generation succeeds", func() {
		It("runs the job to completed with full progress", func() {
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "data:image/png;base64,abc", nil
			})
			runner := newRunner(gen, time.Second)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			runner.Wait()

			job, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(jobs.StatusCompleted))
			Expect(job.Progress).To(Equal(100))
			Expect(job.Result).To(Equal("data:image/png;base64,abc"))
			Expect(job.Error).To(BeEmpty())
		})

		It("publishes a finished event", func() {
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "ok", nil
			})
			runner := newRunner(gen, time.Second)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			Expect(events.jobEvents).To(HaveLen(1))
			Expect(events.jobEvents[0].JobID).To(Equal(id))
			Expect(events.jobEvents[0].Status).To(Equal("completed"))
		})
	})

	Context("when spawned from a session", func() {
		It("notifies the session's subscribers when the job finishes", func() {
			broker := eventstream.NewBroker()
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "data:image/png;base64,abc", nil
			})
			runner, err := jobs.NewRunner(jobs.RunnerConfig{
				Store:        store,
				Generator:    gen,
				Ceiling:      time.Second,
				ProgressTick: 5 * time.Millisecond,
				Notices:      broker,
				Logger:       zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())

			ch, unsubscribe := broker.Subscribe("sess-1")
			defer unsubscribe()

			id, err := runner.Spawn(tools.WithSession(ctx, "sess-1"), "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			var msg eventstream.ProactiveMessage
			Eventually(ch).Should(Receive(&msg))
			Expect(msg.SessionID).To(Equal("sess-1"))
			Expect(msg.JobID).To(Equal(id))
			Expect(msg.Content).To(ContainSubstring("ready"))
		})

		It("stays silent for sessions with no annotation", func() {
			broker := eventstream.NewBroker()
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "ok", nil
			})
			runner, err := jobs.NewRunner(jobs.RunnerConfig{
				Store:     store,
				Generator: gen,
				Notices:   broker,
				Logger:    zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())

			ch, unsubscribe := broker.Subscribe("sess-1")
			defer unsubscribe()

			_, err = runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			Consistently(ch).ShouldNot(Receive())
		})
	})

	Context("when generation fails", func() {
		It("records a generic failure reason", func() {
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "", errors.New("upstream 500: secret internals")
			})
			runner := newRunner(gen, time.Second)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			job, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(jobs.StatusFailed))
			Expect(job.Error).To(Equal("generation failed"))
			Expect(job.Error).NotTo(ContainSubstring("secret"))
		})

		It("keeps the terminal snapshot stable against straggling progress writes", func() {
			gen := imagegen.GeneratorFunc(func(context.Context, string) (string, error) {
				return "", errors.New("upstream 500")
			})
			runner := newRunner(gen, time.Second)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			before, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(before.Status).To(Equal(jobs.StatusFailed))

			// A progress write arriving after the finalize must be rejected
			// by the store, leaving repeated polls byte-identical.
			p := 20
			_, err = store.Update(ctx, id, jobs.Patch{Progress: &p})
			Expect(err).To(BeAssignableToTypeOf(jobs.TransitionError{}))

			after, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(*after).To(Equal(*before))
		})
	})

	Context("when generation hangs", func() {
		It("fails the job at the ceiling instead of leaving it generating", func() {
			gen := imagegen.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			})
			runner := newRunner(gen, 30*time.Millisecond)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())
			runner.Wait()

			job, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(jobs.StatusFailed))
			Expect(job.Error).To(Equal("generation timed out"))
			Expect(job.Progress).To(BeNumerically("<", 100))
		})
	})

	Context("while generating", func() {
		It("reports intermediate progress below completion", func() {
			release := make(chan struct{})
			gen := imagegen.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
				select {
				case <-release:
					return "ok", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			})
			runner := newRunner(gen, time.Second)

			id, err := runner.Spawn(ctx, "a red fox")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int {
				job, err := store.Get(ctx, id)
				if err != nil {
					return 0
				}
				return job.Progress
			}).Should(BeNumerically(">", 0))

			job, err := store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(jobs.StatusGenerating))
			Expect(job.Progress).To(BeNumerically("<", 100))

			close(release)
			runner.Wait()

			job, err = store.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(jobs.StatusCompleted))
			Expect(job.Progress).To(Equal(100))
		})
	})
})

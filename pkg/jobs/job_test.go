package jobs_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lumonlabs/aria/pkg/jobs"
)

func statusPtr(s jobs.Status) *jobs.Status { return &s }
func intPtr(i int) *int                    { return &i }
func strPtr(s string) *string              { return &s }

var _ = Describe("ApplyPatch", func() {
	var job *jobs.Job

	BeforeEach(func() {
		job = &jobs.Job{
			ID:        "job-1",
			Status:    jobs.StatusQueued,
			Progress:  0,
			Prompt:    "a red fox",
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
	})

	It("moves a job forward through its lifecycle", func() {
		Expect(jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusGenerating)})).To(Succeed())
		Expect(job.Status).To(Equal(jobs.StatusGenerating))

		Expect(jobs.ApplyPatch(job, jobs.Patch{
			Status:   statusPtr(jobs.StatusCompleted),
			Progress: intPtr(100),
			Result:   strPtr("data:image/png;base64,xyz"),
		})).To(Succeed())
		Expect(job.Status).To(Equal(jobs.StatusCompleted))
		Expect(job.Progress).To(Equal(100))
		Expect(job.Result).NotTo(BeEmpty())
	})

	It("rejects backward status transitions", func() {
		Expect(jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusGenerating)})).To(Succeed())

		err := jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusQueued)})
		Expect(err).To(BeAssignableToTypeOf(jobs.TransitionError{}))
		Expect(job.Status).To(Equal(jobs.StatusGenerating))
	})

	It("freezes terminal jobs", func() {
		Expect(jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusFailed)})).To(Succeed())

		err := jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusCompleted)})
		Expect(err).To(HaveOccurred())
		Expect(job.Status).To(Equal(jobs.StatusFailed))
	})

	It("rejects every patch against a terminal record, not just status changes", func() {
		Expect(jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusFailed)})).To(Succeed())
		snapshot := *job

		// A straggling progress tick landing after the finalize must not
		// alter the snapshot in any field, UpdatedAt included.
		err := jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(20)})
		Expect(err).To(BeAssignableToTypeOf(jobs.TransitionError{}))
		Expect(*job).To(Equal(snapshot))

		err = jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.StatusFailed), Error: strPtr("again")})
		Expect(err).To(HaveOccurred())
		Expect(*job).To(Equal(snapshot))

		err = jobs.ApplyPatch(job, jobs.Patch{Result: strPtr("data:image/png;base64,late")})
		Expect(err).To(HaveOccurred())
		Expect(*job).To(Equal(snapshot))
	})

	It("rejects unknown statuses", func() {
		err := jobs.ApplyPatch(job, jobs.Patch{Status: statusPtr(jobs.Status("paused"))})
		Expect(err).To(HaveOccurred())
	})

	It("keeps progress monotone within range", func() {
		Expect(jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(40)})).To(Succeed())

		Expect(jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(30)})).To(HaveOccurred())
		Expect(jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(101)})).To(HaveOccurred())
		Expect(jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(-1)})).To(HaveOccurred())
		Expect(job.Progress).To(Equal(40))
	})

	It("touches UpdatedAt on success", func() {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		Expect(jobs.ApplyPatch(job, jobs.Patch{Progress: intPtr(10)})).To(Succeed())
		Expect(job.UpdatedAt.After(before)).To(BeTrue())
	})
})

var _ = Describe("Status", func() {
	It("marks completed and failed as terminal", func() {
		Expect(jobs.StatusCompleted.Terminal()).To(BeTrue())
		Expect(jobs.StatusFailed.Terminal()).To(BeTrue())
		Expect(jobs.StatusQueued.Terminal()).To(BeFalse())
		Expect(jobs.StatusGenerating.Terminal()).To(BeFalse())
	})
})

package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lumonlabs/aria/pkg/policy"
)

var _ = Describe("Table", func() {
	Describe("NewAdminTable", func() {
		var table *policy.Table

		BeforeEach(func() {
			table = policy.NewAdminTable([]string{"user-admin"})
		})

		It("grants admins the moderation bypass", func() {
			Expect(table.Allows("user-admin", policy.CapModerationBypass)).To(BeTrue())
		})

		It("grants admins tool access", func() {
			Expect(table.Allows("user-admin", policy.CapAgentTools)).To(BeTrue())
		})

		It("grants everyone tool access", func() {
			Expect(table.Allows("user-regular", policy.CapAgentTools)).To(BeTrue())
			Expect(table.Allows("", policy.CapAgentTools)).To(BeTrue())
		})

		It("denies non-admins the moderation bypass", func() {
			Expect(table.Allows("user-regular", policy.CapModerationBypass)).To(BeFalse())
		})

		It("denies unknown requesters the moderation bypass", func() {
			Expect(table.Allows("never-seen", policy.CapModerationBypass)).To(BeFalse())
		})

		It("handles an empty admin list", func() {
			empty := policy.NewAdminTable(nil)
			Expect(empty.Allows("anyone", policy.CapModerationBypass)).To(BeFalse())
			Expect(empty.Allows("anyone", policy.CapAgentTools)).To(BeTrue())
		})
	})

	Describe("NewTable", func() {
		It("resolves capabilities through an assigned role", func() {
			table := policy.NewTable(
				[]policy.Role{{Name: "operator", Capabilities: []policy.Capability{policy.CapModerationBypass}}},
				map[string]string{"user-op": "operator"},
				nil,
			)

			Expect(table.Allows("user-op", policy.CapModerationBypass)).To(BeTrue())
			Expect(table.Allows("user-op", policy.CapAgentTools)).To(BeFalse())
		})

		It("denies requesters assigned to an undefined role", func() {
			table := policy.NewTable(
				nil,
				map[string]string{"user-lost": "ghost-role"},
				nil,
			)

			Expect(table.Allows("user-lost", policy.CapModerationBypass)).To(BeFalse())
		})

		It("applies everyone grants to unknown requesters", func() {
			table := policy.NewTable(nil, nil, []policy.Capability{policy.CapAgentTools})

			Expect(table.Allows("anybody", policy.CapAgentTools)).To(BeTrue())
			Expect(table.Allows("anybody", policy.CapModerationBypass)).To(BeFalse())
		})
	})
})

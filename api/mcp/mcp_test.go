package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/api/mcp"
	"github.com/lumonlabs/aria/pkg/tools"
)

var _ = Describe("Server", func() {
	Context("when MCP is enabled", func() {
		It("exposes an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{
				Registry: tools.NewRegistry(zap.NewNop()),
				Logger:   zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("requires a registry and logger", func() {
			_, err := mcp.NewServer(mcp.Config{})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when MCP is disabled", func() {
		It("returns a nil handler so no route is mounted", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())

			// The handler must be untyped nil: a nil *StreamableHTTPHandler
			// wrapped in http.Handler compares non-nil and would get mounted
			// and panic on the first request. Compare with == on purpose;
			// BeNil would also accept the typed nil.
			Expect(server.Handler() == nil).To(BeTrue())
		})
	})
})

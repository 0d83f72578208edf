// Package ariacmder
package ariacmder

import (
	chatcmder "github.com/lumonlabs/aria/cmd/aria/chat"
	configcmder "github.com/lumonlabs/aria/cmd/aria/config"
	servecmder "github.com/lumonlabs/aria/cmd/aria/serve"
	versioncmder "github.com/lumonlabs/aria/cmd/aria/version"
	"github.com/spf13/cobra"
)

const ariaLongDesc string = `Aria is a personal assistant backend.

Run the server using:
  aria serve           Run the assistant API server

Talk to a running server using:
  aria chat            Start an interactive chat session`

const ariaShortDesc string = "Aria - Personal Assistant Backend"

func NewAriaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aria",
		Short: ariaShortDesc,
		Long:  ariaLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

package main

import (
	"os"

	ariacmder "github.com/lumonlabs/aria/cmd/aria"
)

func main() {
	cmd := ariacmder.NewAriaCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides chatcli, a terminal client for the chat assistant.
//
// Usage:
//
//	chatcli [flags] <command> [args]
//
// Commands:
//
//	send   - send one text message and print the reply
//	voice  - send an audio file as a voice message
//	chat   - interactive conversation
//
// Configuration is read from the environment (and .env when present), the
// same variables the widget host uses. Flags override them.
package main

import (
	"fmt"
	"os"

	"github.com/vmkdxailabs/chatwidget/cmd/chatcli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

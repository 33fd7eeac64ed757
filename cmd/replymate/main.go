// Package main is the entry point for the replymate CLI.
package main

import (
	"os"

	"github.com/mrviduus/ReplyMate-sub000/cmd/replymate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

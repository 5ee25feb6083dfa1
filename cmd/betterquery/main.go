package main

import (
	"context"
	"fmt"
	"os"

	"github.com/armelgeek/better-query/internal/cli/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

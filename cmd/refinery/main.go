package main

import (
	"fmt"
	"os"

	"github.com/teranos/refinery/cmd/refinery/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

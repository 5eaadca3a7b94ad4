package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/brensch/csvevents/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
			os.Exit(cmd.ExitPanic)
		}
	}()
	os.Exit(cmd.Execute())
}

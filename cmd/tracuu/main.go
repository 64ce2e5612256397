package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tracuuvn/tracuu/lookup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, lookup.ErrInvalidInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

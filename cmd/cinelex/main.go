package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cinelex/internal/services"
)

func main() {
	os.Exit(run(newRootCommand().Execute()))
}

// run maps a command error to the process exit status: 0 on success, 2
// for rejected input, and 1 for everything else.
func run(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 1
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, services.ErrValidation) {
		return 2
	}
	return 1
}

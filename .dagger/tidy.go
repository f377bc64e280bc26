package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/trickle/internal/dagger"
)

// CheckTidy fails when go.mod or go.sum differ from what "go mod tidy" would
// write, printing the diff.
//
// +check
func (t *Trickle) CheckTidy(ctx context.Context) (string, error) {
	_, err := t.goContainer().
		WithExec([]string{"go", "mod", "tidy", "-diff"}).
		Sync(ctx)

	var execErr *dagger.ExecError
	switch {
	case errors.As(err, &execErr):
		return "", fmt.Errorf("module files need tidying:\n%s", execErr.Stdout)
	case err != nil:
		return "", fmt.Errorf("running go mod tidy: %w", err)
	}

	return "module files are tidy", nil
}

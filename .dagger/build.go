package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/trickle/internal/dagger"
)

// Build returns a directory holding the trickle binary for linux on the
// engine's architecture. The SQLite driver needs CGO, so the build runs in
// the CGO-enabled container.
func (t *Trickle) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	return t.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", "/out/", "./cli/trickle"}).
		Directory("/out")
}

// BuildRelease compiles a versioned release binary with embedded version info
func (t *Trickle) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now().UTC().Format(time.RFC3339)

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/trickle/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/trickle/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/trickle/pkg/utils.Buildtime=%s'", buildtime),
	}

	return t.Build(ctx, strings.Join(ldflags, " "))
}

package wgapple

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GoArchiveCompiler builds the wireguard-go bridge into a static archive.
//
// Build command:
//
//	<toolchain>/bin/go -C <library> build -buildmode=c-archive \
//	    -trimpath -buildvcs=false [BuildFlags...] -o <output>
//
// The header cgo writes next to the archive is removed afterwards; the
// framework ships the library's own wireguard.h.
type GoArchiveCompiler struct {
	Runner        CommandRunner
	LibrarySource string
	BuildFlags    []string
	Verbose       bool
}

// Name returns the compiler name
func (c *GoArchiveCompiler) Name() string {
	return "Go"
}

// Compile runs go build for req.Target.
func (c *GoArchiveCompiler) Compile(ctx context.Context, req *CompileRequest) error {
	args := []string{"-C", c.LibrarySource, "build", "-buildmode=c-archive", "-trimpath", "-buildvcs=false"}
	if c.Verbose {
		args = append(args, "-v")
	}
	args = append(args, c.BuildFlags...)
	args = append(args, "-o", req.OutputPath)

	goBin := req.Toolchain.GoBinary()
	output, err := c.Runner.Run(ctx, req.Env, goBin, args...)
	req.Output = append(req.Output, output...)

	if c.Verbose {
		req.Output = append(req.Output,
			fmt.Sprintf("Running: %s %s", goBin, strings.Join(args, " ")),
			fmt.Sprintf("Library source: %s", c.LibrarySource))
	}

	if err != nil {
		return BuildError(c.Name(), req.Output, err)
	}

	generated := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".h"
	if err := os.Remove(generated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove generated header %s: %w", generated, err)
	}

	return nil
}

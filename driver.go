package wgapple

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Driver cross-compiles the target matrix.
//
// # Usage
//
//	driver := &wgapple.Driver{
//	    Config:   cfg,
//	    Compiler: &wgapple.GoArchiveCompiler{Runner: runner, LibrarySource: cfg.LibrarySource},
//	    SDKs:     &wgapple.Xcrun{Runner: runner},
//	    Archs:    lipo,
//	    Symbols:  &wgapple.NM{Runner: runner},
//	}
//	artifacts, err := driver.BuildAll(ctx, toolchain)
//
// Targets are built strictly sequentially in matrix order. There is no
// retry; the first failure aborts the matrix.
type Driver struct {
	Config   *Config
	Compiler Compiler
	SDKs     SDKResolver
	Archs    ArchitectureInspector
	Symbols  SymbolInspector
}

// BuildAll builds every target of the matrix in order.
//
// Returns the artifacts built so far together with the first error.
func (d *Driver) BuildAll(ctx context.Context, toolchain *ToolchainRoot) ([]*Artifact, error) {
	var artifacts []*Artifact

	for _, target := range d.Config.Targets {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		artifact, err := d.BuildTarget(ctx, target, toolchain)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}

// BuildTarget compiles one target and validates the result.
//
// # Errors
//
//   - MissingPrerequisite: the platform SDK could not be resolved
//   - BuildFailure: the compiler exited non-zero (output attached)
//   - ValidationFailure: the archive is missing, empty, has a different
//     architecture set than {target.CPUArch} or lacks expected symbols
func (d *Driver) BuildTarget(ctx context.Context, target BuildTarget, toolchain *ToolchainRoot) (*Artifact, error) {
	req := &CompileRequest{
		Target:     target,
		Platform:   d.Config.Platform(target.Platform),
		Toolchain:  toolchain,
		OutputPath: d.Config.ArtifactPath(target.Name),
	}

	logf(phaseBuild, "building %s (%s/%s, sdk %s)", target.Name, target.GOOS, target.GOARCH, target.SDK)

	artifact, err := runTargetSteps(ctx, req, TargetSteps{
		ConfigureFunc: d.configure,
		BuildFunc:     d.compile,
		ValidateFunc: func(ctx context.Context, req *CompileRequest) (*Artifact, error) {
			return d.validate(ctx, req.Target.Name, req.OutputPath, []string{req.Target.CPUArch})
		},
	})
	if err != nil {
		return nil, err
	}

	logf(phaseBuild, "%s: %s %s (%d bytes)", target.Name, artifact.Path, formatSet(artifact.Architectures), artifact.Size)
	return artifact, nil
}

// LoadArtifact re-validates the archive a previous run left for target.
func (d *Driver) LoadArtifact(ctx context.Context, target BuildTarget) (*Artifact, error) {
	return d.validate(ctx, target.Name, d.Config.ArtifactPath(target.Name), []string{target.CPUArch})
}

func (d *Driver) configure(ctx context.Context, req *CompileRequest) error {
	sdk, err := d.SDKs.Resolve(ctx, req.Target.SDK)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			return err
		}
		return newError(MissingPrerequisite, "resolve SDK "+req.Target.SDK, "", err)
	}
	req.SDK = sdk
	req.Env = targetEnv(d.Config, req.Target, req.Platform, req.Toolchain, sdk)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return newError(BuildFailure, "create output directory for "+req.Target.Name, filepath.Dir(req.OutputPath), err)
	}
	// A stale archive must not satisfy validation if the compiler writes nothing.
	if err := os.Remove(req.OutputPath); err != nil && !os.IsNotExist(err) {
		return newError(BuildFailure, "remove stale archive for "+req.Target.Name, req.OutputPath, err)
	}
	return nil
}

func (d *Driver) compile(ctx context.Context, req *CompileRequest) error {
	err := d.Compiler.Compile(ctx, req)
	logOutput(phaseBuild, req.Output)
	if err != nil {
		return newError(BuildFailure, "compile "+req.Target.Name, req.OutputPath, err)
	}
	return nil
}

// validate is shared by the driver and the merger: existence, size,
// exact architecture set, expected symbols.
func (d *Driver) validate(ctx context.Context, name, path string, archs []string) (*Artifact, error) {
	return validateArchive(ctx, ValidationFailure, name, path, archs, d.Config.ExpectedSymbols, d.Archs, d.Symbols)
}

func validateArchive(ctx context.Context, kind ErrorKind, name, path string, archs, symbols []string, ai ArchitectureInspector, si SymbolInspector) (*Artifact, error) {
	op := "validate " + name

	size, err := nonEmptyFile(path)
	if err != nil {
		return nil, newError(kind, op, path, fmt.Errorf("archive missing or empty: %w", err))
	}

	got, err := ai.Architectures(ctx, path)
	if err != nil {
		return nil, newError(kind, op, path, err)
	}
	if !sameSet(got, archs) {
		return nil, newError(kind, op, path, fmt.Errorf("architectures %s, want %s", formatSet(got), formatSet(archs)))
	}

	if len(symbols) > 0 && si != nil {
		table, err := si.Symbols(ctx, path)
		if err != nil {
			return nil, newError(kind, op, path, err)
		}
		if missing := MissingSymbols(table, symbols); len(missing) > 0 {
			return nil, newError(kind, op, path, fmt.Errorf("missing exported symbols %v", missing))
		}
	}

	return &Artifact{Path: path, Target: name, Architectures: normalizeSet(got), Size: size}, nil
}

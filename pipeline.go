package wgapple

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Toolset bundles the external collaborators of the pipeline. HostTools
// returns the real command-line implementations; tests substitute fakes.
type Toolset struct {
	Compiler Compiler
	SDKs     SDKResolver
	Archs    ArchitectureInspector
	Symbols  SymbolInspector
	Merger   ArchitectureMerger
	Bundler  BundleAssembler

	// Runner is used by the toolchain preparer (go env, patch).
	Runner CommandRunner

	// Required host tools, checked at the start of every phase. Nil skips
	// the check.
	Required []ToolRequirement
}

// HostTools wires every seam to the Xcode command-line tools and the
// mage-backed runner.
func HostTools(cfg *Config) Toolset {
	runner := &ShellRunner{Verbose: cfg.Verbose}
	lipo := &Lipo{Runner: runner}
	return Toolset{
		Compiler: &GoArchiveCompiler{
			Runner:        runner,
			LibrarySource: cfg.LibrarySource,
			BuildFlags:    cfg.BuildFlags,
			Verbose:       cfg.Verbose,
		},
		SDKs:     &Xcrun{Runner: runner},
		Archs:    lipo,
		Symbols:  &NM{Runner: runner},
		Merger:   lipo,
		Bundler:  &Xcodebuild{Runner: runner},
		Runner:   runner,
		Required: PipelineTools(),
	}
}

// Pipeline runs the three phases against one build root.
//
// # Phases
//
//  1. BuildLibraries: check tools, prepare the toolchain, build the matrix
//  2. Package: re-validate phase 1 archives, merge, assemble, bundle
//  3. Verify: run the gate, print the report, optionally archive
//
// Each phase only reads what the previous one left on disk, so phases can
// be invoked as separate processes. A phase first removes its own output
// and that of later phases. Every phase holds an exclusive lock on
// the build root while it runs.
type Pipeline struct {
	Config *Config
	Tools  Toolset

	// Archive selects an optional release archive written after a
	// successful verification.
	Archive ArchiveFormat

	// Out receives the verification report. Defaults to os.Stdout.
	Out io.Writer
}

// NewPipeline validates cfg and returns a pipeline using tools.
func NewPipeline(cfg *Config, tools Toolset) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{Config: cfg, Tools: tools, Archive: ArchiveNone, Out: os.Stdout}, nil
}

func (p *Pipeline) driver() *Driver {
	return &Driver{
		Config:   p.Config,
		Compiler: p.Tools.Compiler,
		SDKs:     p.Tools.SDKs,
		Archs:    p.Tools.Archs,
		Symbols:  p.Tools.Symbols,
	}
}

// BuildLibraries is phase 1.
func (p *Pipeline) BuildLibraries(ctx context.Context) ([]*Artifact, error) {
	var artifacts []*Artifact
	err := p.withLock(phaseBuild, func() error {
		if err := p.checkTools("xcrun", "patch", "lipo", "nm"); err != nil {
			return err
		}
		if err := p.discardOutputs(phaseBuild, true); err != nil {
			return err
		}

		preparer := &Preparer{Config: p.Config, Runner: p.Tools.Runner}
		toolchain, err := preparer.Prepare(ctx, p.Config.ToolchainSource, p.Config.BuildRoot)
		if err != nil {
			return err
		}

		artifacts, err = p.driver().BuildAll(ctx, toolchain)
		return err
	})
	return artifacts, err
}

// Package is phase 2.
func (p *Pipeline) Package(ctx context.Context) (*DistributableBundle, error) {
	var bundle *DistributableBundle
	err := p.withLock(phaseAssemble, func() error {
		if err := p.checkTools("lipo", "nm", "xcodebuild"); err != nil {
			return err
		}
		if err := p.discardOutputs(phaseAssemble, false); err != nil {
			return err
		}

		cfg := p.Config
		d := p.driver()

		built := make(map[string]*Artifact, len(cfg.Targets))
		for _, t := range cfg.Targets {
			a, err := d.LoadArtifact(ctx, t)
			if err != nil {
				return err
			}
			built[t.Name] = a
		}
		if err := CheckHookInputs(cfg); err != nil {
			return err
		}

		sims := cfg.TargetsFor(PlatformSimulator)
		merger := &Merger{Config: cfg, Tool: p.Tools.Merger, Archs: p.Tools.Archs, Symbols: p.Tools.Symbols}
		fat, err := merger.MergeSimulatorArchitectures(ctx, built[sims[0].Name], built[sims[1].Name])
		if err != nil {
			return err
		}

		device := built[cfg.TargetsFor(PlatformDevice)[0].Name]
		binaries := map[string]*Artifact{PlatformDevice: device, PlatformSimulator: fat}

		assembler := &Assembler{Config: cfg, Bundler: p.Tools.Bundler}
		var variants []*BundleVariant
		for _, pc := range cfg.Platforms {
			v, err := assembler.AssembleVariant(ctx, pc.Name, binaries[pc.Name])
			if err != nil {
				return err
			}
			variants = append(variants, v)
		}

		bundle, err = assembler.AssembleBundle(ctx, variants...)
		if err != nil {
			return err
		}

		if err := CheckDeliverables(cfg); err != nil {
			bundle = nil
			if rmErr := os.RemoveAll(cfg.BundlePath()); rmErr != nil {
				warnf(phaseAssemble, "failed to remove %s: %v", cfg.BundlePath(), rmErr)
			}
			return err
		}
		return nil
	})
	return bundle, err
}

// discardOutputs removes what this and later phases produce, so a failed
// run never leaves a previous run's output behind. Phase 1 also drops
// every single-architecture archive.
func (p *Pipeline) discardOutputs(phase string, libraries bool) error {
	cfg := p.Config
	paths := []string{cfg.BundlePath(), cfg.FrameworksDir(), cfg.FatArtifactPath()}
	if libraries {
		paths = append(paths, cfg.LibrariesDir())
	}
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			return newError(PreparationFailure, "discard previous output", path, err)
		}
	}
	logf(phase, "discarded previous output under %s", cfg.BuildRoot)
	return nil
}

// Verify is phase 3. The report is always returned; the error is a
// VerificationFailure when any check failed.
func (p *Pipeline) Verify(ctx context.Context) (*VerificationReport, error) {
	var report *VerificationReport
	err := p.withLock(phaseVerify, func() error {
		if err := p.checkTools("lipo", "nm"); err != nil {
			return err
		}

		gate := &Gate{Config: p.Config, Archs: p.Tools.Archs, Symbols: p.Tools.Symbols}
		report = gate.Verify(ctx, p.Config.BundlePath())

		out := p.Out
		if out == nil {
			out = os.Stdout
		}
		if err := WriteReport(out, report); err != nil {
			warnf(phaseVerify, "failed to render report: %v", err)
		}

		if err := report.Err(); err != nil {
			return err
		}

		if p.Archive != ArchiveNone && p.Archive != "" {
			if _, _, err := WriteReleaseArchive(p.Config.BundlePath(), p.Archive); err != nil {
				return fmt.Errorf("failed to write release archive: %w", err)
			}
		}
		return nil
	})
	return report, err
}

// RunAll runs phases 1, 2 and 3 in order, stopping at the first failure.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if _, err := p.BuildLibraries(ctx); err != nil {
		return err
	}
	if _, err := p.Package(ctx); err != nil {
		return err
	}
	_, err := p.Verify(ctx)
	return err
}

func (p *Pipeline) withLock(phase string, fn func() error) error {
	lock, err := acquireLock(p.Config.lockPath())
	if err != nil {
		errorf(phase, "%v", err)
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			warnf(phase, "failed to release lock: %v", err)
		}
	}()

	logf(phase, "phase started (build root %s)", p.Config.BuildRoot)
	if err := fn(); err != nil {
		errorf(phase, "%v", err)
		return err
	}
	logf(phase, "phase finished")
	return nil
}

func (p *Pipeline) checkTools(names ...string) error {
	if p.Tools.Required == nil {
		return nil
	}
	var reqs []ToolRequirement
	for _, req := range p.Tools.Required {
		for _, n := range names {
			if req.Name == n {
				reqs = append(reqs, req)
			}
		}
	}
	return CheckRequiredTools(reqs)
}

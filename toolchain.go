package wgapple

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ToolchainState is the persisted preparation state of a ToolchainRoot.
type ToolchainState int

const (
	// Unprepared: the root is absent or was never completed.
	Unprepared ToolchainState = iota
	// Prepared: the sentinel file exists; the root is reused as is.
	Prepared
)

func (s ToolchainState) String() string {
	if s == Prepared {
		return "prepared"
	}
	return "unprepared"
}

// ToolchainEvent drives ToolchainState transitions.
type ToolchainEvent int

const (
	// EventPrepared is raised once copy and patching completed.
	EventPrepared ToolchainEvent = iota
	// EventReset is raised when the root is deleted.
	EventReset
)

// nextToolchainState is the transition function of the preparer's
// two-state machine.
func nextToolchainState(_ ToolchainState, ev ToolchainEvent) ToolchainState {
	switch ev {
	case EventPrepared:
		return Prepared
	default:
		return Unprepared
	}
}

// SentinelName is the zero-byte marker recording a completed preparation.
const SentinelName = ".prepared"

// ToolchainRoot is the isolated, patched GOROOT copy used for every
// target build.
type ToolchainRoot struct {
	Dir string
}

// Sentinel returns the marker file path.
func (r *ToolchainRoot) Sentinel() string {
	return filepath.Join(r.Dir, SentinelName)
}

// State reads the persisted state from the sentinel.
func (r *ToolchainRoot) State() ToolchainState {
	if fileExists(r.Sentinel()) {
		return Prepared
	}
	return Unprepared
}

// GoBinary is the go command inside the root.
func (r *ToolchainRoot) GoBinary() string {
	return filepath.Join(r.Dir, "bin", "go")
}

// transition applies ev and persists the resulting state.
func (r *ToolchainRoot) transition(ev ToolchainEvent) error {
	switch nextToolchainState(r.State(), ev) {
	case Prepared:
		return os.WriteFile(r.Sentinel(), nil, 0o644)
	default:
		return os.RemoveAll(r.Dir)
	}
}

// Reset deletes the root, returning it to Unprepared.
func (r *ToolchainRoot) Reset() error {
	return r.transition(EventReset)
}

// Preparer produces the patched toolchain root.
type Preparer struct {
	Config *Config
	Runner CommandRunner
}

// Prepare copies toolchainSource into <buildRoot>/toolchain and applies
// the library's toolchain patches.
//
// # Behavior
//
//   - Sentinel present: the existing root is returned untouched and a
//     warning is logged.
//   - Source missing (or without bin/go): MissingPrerequisite.
//   - Source older than Config.MinToolchainVersion: MissingPrerequisite.
//   - Copy failure: PreparationFailure. The partial copy is removed.
//   - Patches are applied in lexical order. A patch reported as previously
//     applied is logged as info; any other patch failure is a warning.
//   - The sentinel is written after every patch has been attempted.
//
// An empty toolchainSource is resolved with `go env GOROOT`.
func (p *Preparer) Prepare(ctx context.Context, toolchainSource, buildRoot string) (*ToolchainRoot, error) {
	root := &ToolchainRoot{Dir: filepath.Join(buildRoot, "toolchain")}

	if root.State() == Prepared {
		warnf(phaseToolchain, "toolchain already prepared at %s, skipping", root.Dir)
		return root, nil
	}

	if toolchainSource == "" {
		src, err := ResolveToolchainSource(ctx, p.Runner)
		if err != nil {
			return nil, err
		}
		toolchainSource = src
	}

	if !isDir(toolchainSource) || !fileExists(filepath.Join(toolchainSource, "bin", "go")) {
		return nil, newError(MissingPrerequisite, "locate toolchain", toolchainSource, errors.New("no Go toolchain found"))
	}

	if p.Config.MinToolchainVersion != "" {
		version, err := ToolchainVersion(ctx, p.Runner, toolchainSource)
		if err != nil {
			return nil, newError(MissingPrerequisite, "check toolchain version", toolchainSource, err)
		}
		if err := CheckMinimumVersion(version, p.Config.MinToolchainVersion); err != nil {
			return nil, err
		}
		logf(phaseToolchain, "using go %s from %s", version, toolchainSource)
	}

	// A root without sentinel is a leftover from an interrupted run.
	if err := os.RemoveAll(root.Dir); err != nil {
		return nil, newError(PreparationFailure, "clear toolchain root", root.Dir, err)
	}

	logf(phaseToolchain, "copying %s to %s", toolchainSource, root.Dir)
	if err := copyTree(toolchainSource, root.Dir, p.Config.ToolchainExcludes); err != nil {
		_ = os.RemoveAll(root.Dir)
		return nil, newError(PreparationFailure, "copy toolchain", root.Dir, err)
	}

	patches, err := p.patches()
	if err != nil {
		return nil, newError(PreparationFailure, "list patches", p.Config.LibrarySource, err)
	}
	for _, patch := range patches {
		p.applyPatch(ctx, root, patch)
	}

	if err := root.transition(EventPrepared); err != nil {
		return nil, newError(PreparationFailure, "write sentinel", root.Sentinel(), err)
	}

	logf(phaseToolchain, "toolchain prepared (%d patches)", len(patches))
	return root, nil
}

func (p *Preparer) patches() ([]string, error) {
	if p.Config.PatchGlob == "" {
		return nil, nil
	}
	pattern := p.Config.PatchGlob
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(p.Config.LibrarySource, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// applyPatch never fails the preparation; the patches harden the runtime
// but the build does not depend on them.
func (p *Preparer) applyPatch(ctx context.Context, root *ToolchainRoot, patch string) {
	name := filepath.Base(patch)
	out, err := p.Runner.Run(ctx, nil, "patch", "-p1", "-N", "-r", "-", "-d", root.Dir, "-i", patch)
	logOutput(phaseToolchain, out)

	switch {
	case err == nil:
		logf(phaseToolchain, "applied %s", name)
	case patchAlreadyApplied(out):
		logf(phaseToolchain, "%s already applied", name)
	default:
		warnf(phaseToolchain, "patch %s failed: %v", name, ToolError("patch", out, err))
	}
}

func patchAlreadyApplied(output []string) bool {
	for _, line := range output {
		if MatchesPattern(line, `previously applied`, `Reversed \(or previously applied\) patch detected`) {
			return true
		}
	}
	return false
}

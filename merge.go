package wgapple

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Merger combines the simulator archives into one fat archive.
type Merger struct {
	Config  *Config
	Tool    ArchitectureMerger
	Archs   ArchitectureInspector
	Symbols SymbolInspector
}

// MergeSimulatorArchitectures merges two single-architecture simulator
// artifacts into Config.FatArtifactPath().
//
// The resulting architecture set is the union of the inputs regardless of
// argument order. Fails with MergeFailure when an input is missing, empty,
// not a single-architecture simulator artifact, or when the merged archive
// does not hold exactly the union.
func (m *Merger) MergeSimulatorArchitectures(ctx context.Context, a, b *Artifact) (*FatArtifact, error) {
	var union []string
	for _, in := range []*Artifact{a, b} {
		if err := m.checkInput(in); err != nil {
			return nil, err
		}
		union = append(union, in.Architectures...)
	}
	union = normalizeSet(union)
	if len(union) != 2 {
		return nil, newError(MergeFailure, "merge simulator archives", "", fmt.Errorf("inputs share architectures %s", formatSet(union)))
	}

	output := m.Config.FatArtifactPath()
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, newError(MergeFailure, "create fat archive directory", filepath.Dir(output), err)
	}
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return nil, newError(MergeFailure, "remove stale fat archive", output, err)
	}

	logf(phaseMerge, "merging %s + %s -> %s", a.Target, b.Target, output)
	if err := m.Tool.Merge(ctx, output, a.Path, b.Path); err != nil {
		return nil, newError(MergeFailure, "merge simulator archives", output, err)
	}

	fat, err := validateArchive(ctx, MergeFailure, m.Config.SimulatorFatTarget, output, union, m.Config.ExpectedSymbols, m.Archs, m.Symbols)
	if err != nil {
		return nil, err
	}

	logf(phaseMerge, "%s: %s (%d bytes)", fat.Target, formatSet(fat.Architectures), fat.Size)
	return fat, nil
}

func (m *Merger) checkInput(in *Artifact) error {
	if in == nil {
		return newError(MergeFailure, "merge simulator archives", "", fmt.Errorf("missing input artifact"))
	}
	op := "merge input " + in.Target
	if _, err := nonEmptyFile(in.Path); err != nil {
		return newError(MergeFailure, op, in.Path, err)
	}
	if len(normalizeSet(in.Architectures)) != 1 {
		return newError(MergeFailure, op, in.Path, fmt.Errorf("expected a single-architecture archive, got %s", formatSet(in.Architectures)))
	}
	for _, t := range m.Config.Targets {
		if t.Name == in.Target {
			if t.Platform != PlatformSimulator {
				return newError(MergeFailure, op, in.Path, fmt.Errorf("target belongs to platform %q", t.Platform))
			}
			return nil
		}
	}
	return newError(MergeFailure, op, in.Path, fmt.Errorf("unknown target"))
}

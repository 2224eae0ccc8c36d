package wgapple

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HookContract lists the paths the package manager's prepare hook consumes
// once the pipeline returns. Globs and paths are relative to the project
// root.
type HookContract struct {
	BindingGlobs  []string `yaml:"binding_globs"`
	HeaderGlobs   []string `yaml:"header_globs"`
	PreservePaths []string `yaml:"preserve_paths"`
}

// CheckDeliverables verifies that the bundle and every hook input resolve
// to existing, non-empty paths.
func CheckDeliverables(cfg *Config) error {
	var problems []string
	if !nonEmptyPath(cfg.BundlePath()) {
		problems = append(problems, "bundle "+cfg.BundlePath())
	}
	return deliverablesError(cfg, append(problems, hookProblems(cfg)...))
}

// CheckHookInputs verifies every glob, preserved path and raw archive the
// hook consumes. Phase 2 runs it before creating the bundle.
func CheckHookInputs(cfg *Config) error {
	return deliverablesError(cfg, hookProblems(cfg))
}

func hookProblems(cfg *Config) []string {
	var problems []string

	for _, glob := range append(append([]string{}, cfg.Hook.BindingGlobs...), cfg.Hook.HeaderGlobs...) {
		matches, err := filepath.Glob(cfg.projectPath(glob))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s (%v)", glob, err))
			continue
		}
		found := false
		for _, m := range matches {
			if nonEmptyPath(m) {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, "glob "+glob)
		}
	}

	for _, p := range cfg.Hook.PreservePaths {
		if !nonEmptyPath(cfg.projectPath(p)) {
			problems = append(problems, "path "+p)
		}
	}

	// Raw archives stay available for direct linking.
	for _, t := range cfg.Targets {
		if !nonEmptyPath(cfg.ArtifactPath(t.Name)) {
			problems = append(problems, "archive "+cfg.ArtifactPath(t.Name))
		}
	}
	return problems
}

func deliverablesError(cfg *Config, problems []string) error {
	if len(problems) > 0 {
		return newError(AssemblyFailure, "check package deliverables", cfg.ProjectRoot,
			fmt.Errorf("missing or empty: %s", strings.Join(problems, ", ")))
	}
	return nil
}

func (c *Config) projectPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

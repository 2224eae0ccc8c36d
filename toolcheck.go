package wgapple

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// ToolRequirement describes an external tool dependency.
//
// # Examples
//
// Required tool:
//
//	ToolRequirement{
//	    Name:    "lipo",
//	    Purpose: "merge and inspect Mach-O architectures",
//	}
//
// Tool with alternatives:
//
//	ToolRequirement{
//	    Name:         "patch",
//	    Alternatives: []string{"gpatch"},
//	    Purpose:      "apply toolchain patches",
//	}
type ToolRequirement struct {
	// Name is the primary tool binary name.
	Name string

	// Alternatives can satisfy the requirement if Name is missing.
	Alternatives []string

	// Optional tools are looked up but never cause an error.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// PipelineTools lists the host tools the real pipeline shells out to.
func PipelineTools() []ToolRequirement {
	return []ToolRequirement{
		{Name: "xcrun", Purpose: "locate platform SDKs and clang"},
		{Name: "lipo", Purpose: "merge and inspect Mach-O architectures"},
		{Name: "nm", Purpose: "inspect exported symbols"},
		{Name: "xcodebuild", Purpose: "create the xcframework"},
		{Name: "patch", Alternatives: []string{"gpatch"}, Purpose: "apply toolchain patches"},
	}
}

// CheckToolAvailable checks if a tool is available in the system PATH.
func CheckToolAvailable(tool string) error {
	_, err := execLookPath(tool)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", tool)
	}
	return nil
}

// CheckRequiredTools verifies all required tools are available.
//
// # Behavior
//
//   - Checks the primary tool name first
//   - If not found, tries each alternative tool in order
//   - Optional tools are checked but don't cause errors
//   - Returns all missing required tools in a single MissingPrerequisite error
//
// # Error Format
//
// Single missing tool:
//
//	missing prerequisite: check tools: lipo (merge and inspect Mach-O architectures) not found in PATH
//
// Multiple missing tools:
//
//	missing prerequisite: check tools: missing required tools: lipo (...), nm (...)
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range requirements {
		found := CheckToolAvailable(req.Name) == nil

		if !found && len(req.Alternatives) > 0 {
			for _, alt := range req.Alternatives {
				if CheckToolAvailable(alt) == nil {
					found = true
					break
				}
			}
		}

		if !found && !req.Optional {
			if req.Purpose != "" {
				missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
			} else {
				missingTools = append(missingTools, req.Name)
			}
		}
	}

	if len(missingTools) == 0 {
		return nil
	}

	if len(missingTools) == 1 {
		return newError(MissingPrerequisite, "check tools", "", fmt.Errorf("%s not found in PATH", missingTools[0]))
	}

	return newError(MissingPrerequisite, "check tools", "", fmt.Errorf("missing required tools: %s", strings.Join(missingTools, ", ")))
}

var goVersionRe = regexp.MustCompile(`go(\d+(?:\.\d+){0,2})`)

// ToolchainVersion asks the Go toolchain under root for its version and
// returns it in semver form ("v1.22.3"). Pre-release suffixes such as
// "rc1" are dropped.
func ToolchainVersion(ctx context.Context, runner CommandRunner, root string) (string, error) {
	goBin := filepath.Join(root, "bin", "go")
	out, err := runner.Run(ctx, map[string]string{"GOROOT": root, "GOTOOLCHAIN": "local"}, goBin, "env", "GOVERSION")
	if err != nil {
		return "", ToolError("go env", out, err)
	}
	for _, line := range out {
		if m := goVersionRe.FindStringSubmatch(line); m != nil {
			return "v" + m[1], nil
		}
	}
	return "", fmt.Errorf("unrecognised go version output %q", strings.Join(out, " "))
}

// CheckMinimumVersion fails with MissingPrerequisite when have is older
// than minimum. Both are Go versions with or without the "v"/"go" prefix.
func CheckMinimumVersion(have, minimum string) error {
	h := canonicalVersion(have)
	m := canonicalVersion(minimum)
	if !semver.IsValid(h) || !semver.IsValid(m) {
		return newError(MissingPrerequisite, "check toolchain version", "", fmt.Errorf("cannot compare %q with %q", have, minimum))
	}
	if semver.Compare(h, m) < 0 {
		return newError(MissingPrerequisite, "check toolchain version", "", fmt.Errorf("go %s is older than required %s", strings.TrimPrefix(h, "v"), strings.TrimPrefix(m, "v")))
	}
	return nil
}

func canonicalVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "go")
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// ResolveToolchainSource returns the GOROOT of the host Go toolchain.
func ResolveToolchainSource(ctx context.Context, runner CommandRunner) (string, error) {
	out, err := runner.Run(ctx, nil, "go", "env", "GOROOT")
	if err != nil || len(out) == 0 {
		return "", newError(MissingPrerequisite, "locate toolchain", "", ToolError("go env", out, err))
	}
	return strings.TrimSpace(out[0]), nil
}

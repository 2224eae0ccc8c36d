package wgapple

import (
	"context"
	"sort"
	"strings"
)

// BuildTarget describes one entry of the cross-compilation matrix.
//
// A target pairs an Apple SDK and CPU architecture with the GOOS/GOARCH
// values the Go toolchain needs to produce a c-archive for it:
//   - Name: directory name under <buildRoot>/libraries (e.g. "ios-arm64")
//   - Platform: the platform class that owns the target ("device", "simulator")
//   - SDK: the xcrun SDK identifier ("iphoneos", "iphonesimulator")
//   - CPUArch: the Mach-O architecture name reported by lipo ("arm64", "x86_64")
//   - GOARCH / GOOS: toolchain architecture and OS names ("amd64", "ios")
type BuildTarget struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	SDK      string `yaml:"sdk"`
	CPUArch  string `yaml:"cpu_arch"`
	GOARCH   string `yaml:"goarch"`
	GOOS     string `yaml:"goos"`
}

// PlatformClass groups targets that end up in the same bundle slot.
//
// MinVersionFlag is the clang flag spelling for the minimum OS version,
// which differs between the device and simulator SDKs. LibraryIdentifier is
// the directory name xcodebuild gives the variant inside the xcframework.
type PlatformClass struct {
	Name                     string `yaml:"name"`
	SDK                      string `yaml:"sdk"`
	MinVersionFlag           string `yaml:"min_version_flag"`
	LibraryIdentifier        string `yaml:"library_identifier"`
	SupportedPlatformVariant string `yaml:"supported_platform_variant,omitempty"`
}

// Artifact is a static archive produced for one build target.
//
// An Artifact returned by the Driver or the Merger has already passed
// existence, size, architecture and symbol validation.
type Artifact struct {
	Path          string   // Absolute path of the archive
	Target        string   // Target name (or the simulator fat target name)
	Architectures []string // Sorted architecture set reported by the inspector
	Size          int64    // Size in bytes
}

// FatArtifact is an Artifact holding more than one architecture.
type FatArtifact = Artifact

// HasExactly reports whether the artifact's architecture set equals want.
func (a *Artifact) HasExactly(want ...string) bool {
	return sameSet(a.Architectures, want)
}

// BundleVariant is the platform-class specific .framework directory that
// the bundler tool later combines into the xcframework.
type BundleVariant struct {
	Platform  string   // Platform class name
	Dir       string   // <Name>.framework directory
	Binary    string   // Framework binary, named after the framework
	Headers   []string // Umbrella header and the library's public header
	ModuleMap string   // Modules/module.modulemap
	InfoPlist string   // Info.plist metadata descriptor
}

// DistributableBundle is the combined multi-platform xcframework.
type DistributableBundle struct {
	Path      string
	InfoPlist string
	Variants  []*BundleVariant
}

// TargetSteps defines the configure/build/validate pattern every target
// build follows.
//
// The driver runs the steps in order and stops at the first error:
//  1. Configure: resolve the SDK and compose the per-target environment
//  2. Build: run the compiler to produce the static archive
//  3. Validate: inspect the archive and turn it into an Artifact
type TargetSteps struct {
	ConfigureFunc func(ctx context.Context, req *CompileRequest) error
	BuildFunc     func(ctx context.Context, req *CompileRequest) error
	ValidateFunc  func(ctx context.Context, req *CompileRequest) (*Artifact, error)
}

func sameSet(got, want []string) bool {
	a := normalizeSet(got)
	b := normalizeSet(want)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizeSet(values []string) []string {
	out := uniqueStrings(values)
	sort.Strings(out)
	return out
}

func formatSet(values []string) string {
	return "{" + strings.Join(normalizeSet(values), ", ") + "}"
}

package wgapple

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Platform class names used by the default matrix.
const (
	PlatformDevice    = "device"
	PlatformSimulator = "simulator"
)

// Config is the read-only environment registry shared by every stage.
//
// A Config is built once at startup (DefaultConfig, optionally overlaid
// with LoadConfig) and passed explicitly to each component. Nothing in
// this package mutates a Config after construction.
//
// # Layout
//
// All paths derive from three roots:
//
//	<BuildRoot>/toolchain                      patched GOROOT copy
//	<BuildRoot>/libraries/<target>/<Archive>   per-target c-archive
//	<BuildRoot>/frameworks/<platform>/         framework variants
//	<ArtifactsRoot>/<BundleName>.<BundleExt>   final xcframework
type Config struct {
	ProjectRoot     string `yaml:"project_root"`
	BuildRoot       string `yaml:"build_root"`
	ArtifactsRoot   string `yaml:"artifacts_root"`
	LibrarySource   string `yaml:"library_source"`
	ToolchainSource string `yaml:"toolchain_source"` // empty: `go env GOROOT`

	MinPlatformVersion  string `yaml:"min_platform_version"`
	MinToolchainVersion string `yaml:"min_toolchain_version"`

	ArchiveName      string   `yaml:"archive_name"`
	BundleName       string   `yaml:"bundle_name"`
	BundleExtension  string   `yaml:"bundle_extension"`
	BundleIdentifier string   `yaml:"bundle_identifier"`
	DisplayName      string   `yaml:"display_name"`
	InternalVersion  string   `yaml:"internal_version"`
	PublicHeader     string   `yaml:"public_header"` // relative to LibrarySource
	ExpectedSymbols  []string `yaml:"expected_symbols"`

	PatchGlob         string   `yaml:"patch_glob"` // relative to LibrarySource
	ToolchainExcludes []string `yaml:"toolchain_excludes"`
	BuildFlags        []string `yaml:"build_flags"`

	Targets            []BuildTarget   `yaml:"targets"`
	Platforms          []PlatformClass `yaml:"platforms"`
	SimulatorFatTarget string          `yaml:"simulator_fat_target"`

	Hook HookContract `yaml:"hook"`

	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the registry for the WireGuardKitGo xcframework
// rooted at projectRoot.
func DefaultConfig(projectRoot string) *Config {
	return &Config{
		ProjectRoot:   projectRoot,
		BuildRoot:     filepath.Join(projectRoot, "build"),
		ArtifactsRoot: filepath.Join(projectRoot, "artifacts"),
		LibrarySource: filepath.Join(projectRoot, "Sources", "WireGuardKitGo"),

		MinPlatformVersion:  "15.0",
		MinToolchainVersion: "1.21",

		ArchiveName:      "libwg-go.a",
		BundleName:       "WireGuardKitGo",
		BundleExtension:  "xcframework",
		BundleIdentifier: "com.wireguard.WireGuardKitGo",
		DisplayName:      "WireGuardKitGo",
		InternalVersion:  "1",
		PublicHeader:     "wireguard.h",
		ExpectedSymbols:  []string{"wgTurnOn", "wgTurnOff", "wgSetConfig", "wgGetConfig", "wgVersion"},

		PatchGlob:         "goruntime-*.diff",
		ToolchainExcludes: []string{filepath.Join("pkg", "obj", "go-build")},
		BuildFlags:        []string{"-ldflags=-w -s"},

		Targets: []BuildTarget{
			{Name: "ios-arm64", Platform: PlatformDevice, SDK: "iphoneos", CPUArch: "arm64", GOARCH: "arm64", GOOS: "ios"},
			{Name: "ios-arm64-simulator", Platform: PlatformSimulator, SDK: "iphonesimulator", CPUArch: "arm64", GOARCH: "arm64", GOOS: "ios"},
			{Name: "ios-x86_64-simulator", Platform: PlatformSimulator, SDK: "iphonesimulator", CPUArch: "x86_64", GOARCH: "amd64", GOOS: "ios"},
		},
		Platforms: []PlatformClass{
			{Name: PlatformDevice, SDK: "iphoneos", MinVersionFlag: "-miphoneos-version-min", LibraryIdentifier: "ios-arm64"},
			{Name: PlatformSimulator, SDK: "iphonesimulator", MinVersionFlag: "-mios-simulator-version-min", LibraryIdentifier: "ios-arm64_x86_64-simulator", SupportedPlatformVariant: "simulator"},
		},
		SimulatorFatTarget: "ios-arm64_x86_64-simulator",

		Hook: HookContract{
			BindingGlobs:  []string{filepath.Join("Sources", "WireGuardKit", "*.swift")},
			HeaderGlobs:   []string{filepath.Join("Sources", "WireGuardKitC", "*.h")},
			PreservePaths: []string{"scripts", filepath.Join("Sources", "WireGuardKitGo")},
		},
	}
}

// LoadConfig overlays the YAML file at path onto DefaultConfig(projectRoot).
//
// Fields absent from the file keep their defaults. Relative paths in the
// file are resolved against projectRoot. A missing file is not an error;
// the defaults are returned unchanged.
func LoadConfig(path, projectRoot string) (*Config, error) {
	cfg := DefaultConfig(projectRoot)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	for _, p := range []*string{&cfg.BuildRoot, &cfg.ArtifactsRoot, &cfg.LibrarySource, &cfg.ToolchainSource} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(cfg.ProjectRoot, *p)
		}
	}

	return cfg, nil
}

// Validate checks the registry for internal consistency.
func (c *Config) Validate() error {
	switch {
	case c.BuildRoot == "":
		return fmt.Errorf("config: build root is empty")
	case c.ArtifactsRoot == "":
		return fmt.Errorf("config: artifacts root is empty")
	case c.ArchiveName == "":
		return fmt.Errorf("config: archive name is empty")
	case c.BundleName == "" || c.BundleExtension == "":
		return fmt.Errorf("config: bundle name and extension are required")
	case len(c.Targets) == 0:
		return fmt.Errorf("config: target matrix is empty")
	case c.SimulatorFatTarget == "":
		return fmt.Errorf("config: simulator fat target name is empty")
	}

	platforms := make(map[string]bool, len(c.Platforms))
	for _, p := range c.Platforms {
		if p.LibraryIdentifier == "" {
			return fmt.Errorf("config: platform %q has no library identifier", p.Name)
		}
		platforms[p.Name] = true
	}

	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate target %q", t.Name)
		}
		seen[t.Name] = true
		if !platforms[t.Platform] {
			return fmt.Errorf("config: target %q references unknown platform %q", t.Name, t.Platform)
		}
	}

	if len(c.TargetsFor(PlatformDevice)) != 1 {
		return fmt.Errorf("config: expected exactly one %s target", PlatformDevice)
	}
	if len(c.TargetsFor(PlatformSimulator)) != 2 {
		return fmt.Errorf("config: expected exactly two %s targets", PlatformSimulator)
	}

	return nil
}

// Target returns the target named name.
//
// Referencing an undefined target is a programming error and panics.
func (c *Config) Target(name string) BuildTarget {
	for _, t := range c.Targets {
		if t.Name == name {
			return t
		}
	}
	panic(fmt.Sprintf("wgapple: undefined build target %q", name))
}

// Platform returns the platform class named name. It panics on an
// undefined name.
func (c *Config) Platform(name string) PlatformClass {
	for _, p := range c.Platforms {
		if p.Name == name {
			return p
		}
	}
	panic(fmt.Sprintf("wgapple: undefined platform class %q", name))
}

// TargetsFor returns the targets of a platform class in matrix order.
func (c *Config) TargetsFor(platform string) []BuildTarget {
	var targets []BuildTarget
	for _, t := range c.Targets {
		if t.Platform == platform {
			targets = append(targets, t)
		}
	}
	return targets
}

// Architectures returns the architecture set a platform class' binary
// must contain.
func (c *Config) Architectures(platform string) []string {
	var archs []string
	for _, t := range c.TargetsFor(platform) {
		archs = append(archs, t.CPUArch)
	}
	return normalizeSet(archs)
}

// ToolchainDir is the isolated GOROOT copy.
func (c *Config) ToolchainDir() string {
	return filepath.Join(c.BuildRoot, "toolchain")
}

// LibrariesDir holds one directory per target with its static archive.
func (c *Config) LibrariesDir() string {
	return filepath.Join(c.BuildRoot, "libraries")
}

// ArtifactPath is the fixed output path of a target's static archive.
func (c *Config) ArtifactPath(targetName string) string {
	return filepath.Join(c.LibrariesDir(), targetName, c.ArchiveName)
}

// FatArtifactPath is the merged simulator archive.
func (c *Config) FatArtifactPath() string {
	return c.ArtifactPath(c.SimulatorFatTarget)
}

// FrameworksDir holds the framework variants.
func (c *Config) FrameworksDir() string {
	return filepath.Join(c.BuildRoot, "frameworks")
}

// VariantDir is the <BundleName>.framework directory of a platform class.
func (c *Config) VariantDir(platform string) string {
	return filepath.Join(c.FrameworksDir(), platform, c.BundleName+".framework")
}

// BundlePath is the final xcframework directory.
func (c *Config) BundlePath() string {
	return filepath.Join(c.ArtifactsRoot, c.BundleName+"."+c.BundleExtension)
}

// PublicHeaderPath is the library's C header.
func (c *Config) PublicHeaderPath() string {
	if filepath.IsAbs(c.PublicHeader) {
		return c.PublicHeader
	}
	return filepath.Join(c.LibrarySource, c.PublicHeader)
}

// lockPath is the advisory lock file guarding the build root.
func (c *Config) lockPath() string {
	return filepath.Join(c.BuildRoot, ".wgapple.lock")
}

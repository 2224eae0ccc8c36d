package wgapple

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"howett.net/plist"
)

// FrameworkInfo is the Info.plist written into every framework variant.
type FrameworkInfo struct {
	BundleIdentifier   string   `plist:"CFBundleIdentifier"`
	BundleName         string   `plist:"CFBundleName"`
	DisplayName        string   `plist:"CFBundleDisplayName"`
	Executable         string   `plist:"CFBundleExecutable"`
	PackageType        string   `plist:"CFBundlePackageType"`
	InfoVersion        string   `plist:"CFBundleInfoDictionaryVersion"`
	Version            string   `plist:"CFBundleVersion"`
	ShortVersion       string   `plist:"CFBundleShortVersionString"`
	MinimumOSVersion   string   `plist:"MinimumOSVersion"`
	SupportedPlatforms []string `plist:"CFBundleSupportedPlatforms"`
}

// XCFrameworkInfo is the subset of the top-level xcframework Info.plist
// the pipeline reads back.
type XCFrameworkInfo struct {
	AvailableLibraries []XCFrameworkLibrary `plist:"AvailableLibraries"`
	PackageType        string               `plist:"CFBundlePackageType"`
	FormatVersion      string               `plist:"XCFrameworkFormatVersion"`
}

// XCFrameworkLibrary is one AvailableLibraries entry.
type XCFrameworkLibrary struct {
	LibraryIdentifier        string   `plist:"LibraryIdentifier"`
	LibraryPath              string   `plist:"LibraryPath"`
	SupportedArchitectures   []string `plist:"SupportedArchitectures"`
	SupportedPlatform        string   `plist:"SupportedPlatform"`
	SupportedPlatformVariant string   `plist:"SupportedPlatformVariant,omitempty"`
}

var umbrellaHeaderTmpl = template.Must(template.New("umbrella").Parse(`#ifndef {{.Guard}}
#define {{.Guard}}

#include "{{.Header}}"

#endif
`))

var moduleMapTmpl = template.Must(template.New("modulemap").Parse(`framework module {{.Name}} {
    umbrella header "{{.Name}}.h"

    export *
    module * { export * }

    explicit module {{.SubModule}} {
        header "{{.Header}}"
        export *
    }
}
`))

// Assembler builds framework variants and the final xcframework.
type Assembler struct {
	Config  *Config
	Bundler BundleAssembler
}

// AssembleVariant creates <BuildRoot>/frameworks/<platform>/<Name>.framework
// around binary.
//
// Any previous variant directory is removed first. The binary is copied
// under the framework name because xcodebuild requires the executable to
// match the bundle basename.
func (a *Assembler) AssembleVariant(ctx context.Context, platform string, binary *Artifact) (*BundleVariant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := a.Config
	pc := cfg.Platform(platform)
	op := "assemble " + platform + " variant"

	if binary == nil {
		return nil, newError(AssemblyFailure, op, "", fmt.Errorf("no binary"))
	}
	if !binary.HasExactly(cfg.Architectures(platform)...) {
		return nil, newError(AssemblyFailure, op, binary.Path, fmt.Errorf("binary has %s, platform needs %s", formatSet(binary.Architectures), formatSet(cfg.Architectures(platform))))
	}

	dir := cfg.VariantDir(platform)
	if err := os.RemoveAll(dir); err != nil {
		return nil, newError(AssemblyFailure, op, dir, err)
	}

	v := &BundleVariant{
		Platform:  platform,
		Dir:       dir,
		Binary:    filepath.Join(dir, cfg.BundleName),
		ModuleMap: filepath.Join(dir, "Modules", "module.modulemap"),
		InfoPlist: filepath.Join(dir, "Info.plist"),
	}

	umbrella := filepath.Join(dir, "Headers", cfg.BundleName+".h")
	public := filepath.Join(dir, "Headers", filepath.Base(cfg.PublicHeader))
	v.Headers = []string{umbrella, public}

	steps := []struct {
		what string
		fn   func() error
	}{
		{"copy binary", func() error { return copyFile(binary.Path, v.Binary) }},
		{"write umbrella header", func() error { return a.writeUmbrella(umbrella) }},
		{"copy public header", func() error { return copyFile(cfg.PublicHeaderPath(), public) }},
		{"write module map", func() error { return a.writeModuleMap(v.ModuleMap) }},
		{"write Info.plist", func() error { return a.writeInfoPlist(v.InfoPlist, pc) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, newError(AssemblyFailure, op+": "+step.what, dir, err)
		}
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	logf(phaseAssemble, "%s variant ready at %s", platform, dir)
	return v, nil
}

// Validate checks that every part of the variant is present and non-empty.
func (v *BundleVariant) Validate() error {
	if v == nil {
		return newError(AssemblyFailure, "validate variant", "", fmt.Errorf("variant is nil"))
	}
	parts := append([]string{v.Binary, v.ModuleMap, v.InfoPlist}, v.Headers...)
	if len(v.Headers) == 0 {
		return newError(AssemblyFailure, "validate "+v.Platform+" variant", v.Dir, fmt.Errorf("no headers"))
	}
	for _, part := range parts {
		if _, err := nonEmptyFile(part); err != nil {
			return newError(AssemblyFailure, "validate "+v.Platform+" variant", part, err)
		}
	}
	return nil
}

// AssembleBundle combines the variants into Config.BundlePath().
//
// The bundler writes into a uniquely named staging directory which is
// moved into place only after the top-level Info.plist was found. On any
// failure the staging directory is removed, so no partial bundle is left
// at the output path.
func (a *Assembler) AssembleBundle(ctx context.Context, variants ...*BundleVariant) (*DistributableBundle, error) {
	cfg := a.Config
	op := "assemble bundle"

	if len(variants) != len(cfg.Platforms) {
		return nil, newError(AssemblyFailure, op, "", fmt.Errorf("got %d variants, want %d", len(variants), len(cfg.Platforms)))
	}
	frameworks := make([]string, 0, len(variants))
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if seen[v.Platform] {
			return nil, newError(AssemblyFailure, op, v.Dir, fmt.Errorf("duplicate %s variant", v.Platform))
		}
		seen[v.Platform] = true
		frameworks = append(frameworks, v.Dir)
	}

	final := cfg.BundlePath()
	if err := os.RemoveAll(final); err != nil {
		return nil, newError(AssemblyFailure, op, final, err)
	}

	staging := filepath.Join(cfg.ArtifactsRoot, ".staging-"+uuid.NewString())
	defer os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, newError(AssemblyFailure, op, staging, err)
	}
	staged := filepath.Join(staging, filepath.Base(final))

	logf(phaseAssemble, "creating %s", final)
	if err := a.Bundler.CreateBundle(ctx, staged, frameworks...); err != nil {
		return nil, newError(AssemblyFailure, op, final, err)
	}

	if !fileExists(filepath.Join(staged, "Info.plist")) {
		return nil, newError(AssemblyFailure, op, final, fmt.Errorf("bundler produced no top-level Info.plist"))
	}

	if err := os.Rename(staged, final); err != nil {
		return nil, newError(AssemblyFailure, op, final, err)
	}

	logf(phaseAssemble, "bundle ready at %s", final)
	return &DistributableBundle{
		Path:      final,
		InfoPlist: filepath.Join(final, "Info.plist"),
		Variants:  variants,
	}, nil
}

func (a *Assembler) writeUmbrella(path string) error {
	guard := strings.ToUpper(a.Config.BundleName) + "_H"
	var buf bytes.Buffer
	if err := umbrellaHeaderTmpl.Execute(&buf, map[string]string{
		"Guard":  guard,
		"Header": filepath.Base(a.Config.PublicHeader),
	}); err != nil {
		return err
	}
	return writeFile(path, buf.String())
}

func (a *Assembler) writeModuleMap(path string) error {
	header := filepath.Base(a.Config.PublicHeader)
	var buf bytes.Buffer
	if err := moduleMapTmpl.Execute(&buf, map[string]string{
		"Name":      a.Config.BundleName,
		"SubModule": subModuleName(header),
		"Header":    header,
	}); err != nil {
		return err
	}
	return writeFile(path, buf.String())
}

func (a *Assembler) writeInfoPlist(path string, pc PlatformClass) error {
	cfg := a.Config
	platform := "iPhoneOS"
	if pc.SupportedPlatformVariant == "simulator" {
		platform = "iPhoneSimulator"
	}

	info := FrameworkInfo{
		BundleIdentifier:   cfg.BundleIdentifier,
		BundleName:         cfg.BundleName,
		DisplayName:        cfg.DisplayName,
		Executable:         cfg.BundleName,
		PackageType:        "FMWK",
		InfoVersion:        "6.0",
		Version:            cfg.InternalVersion,
		ShortVersion:       cfg.InternalVersion,
		MinimumOSVersion:   cfg.MinPlatformVersion,
		SupportedPlatforms: []string{platform},
	}

	data, err := plist.MarshalIndent(info, plist.XMLFormat, "\t")
	if err != nil {
		return err
	}
	return writeFile(path, string(data))
}

// ReadFrameworkInfo decodes a framework Info.plist.
func ReadFrameworkInfo(path string) (*FrameworkInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info FrameworkInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &info, nil
}

// ReadXCFrameworkInfo decodes the top-level xcframework Info.plist.
func ReadXCFrameworkInfo(path string) (*XCFrameworkInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info XCFrameworkInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &info, nil
}

// subModuleName is the header stem with its first letter upper-cased,
// "wireguard.h" becomes "Wireguard".
func subModuleName(header string) string {
	stem := strings.TrimSuffix(header, filepath.Ext(header))
	if stem == "" {
		return "C"
	}
	return strings.ToUpper(stem[:1]) + stem[1:]
}

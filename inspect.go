package wgapple

import (
	"context"
	"fmt"
	"strings"
)

// ArchitectureInspector reports the CPU architectures a binary contains.
type ArchitectureInspector interface {
	Architectures(ctx context.Context, path string) ([]string, error)
}

// SymbolInspector dumps the external symbol table of a binary.
type SymbolInspector interface {
	Symbols(ctx context.Context, path string) ([]string, error)
}

// ArchitectureMerger combines single-architecture archives into one fat
// archive.
type ArchitectureMerger interface {
	Merge(ctx context.Context, output string, inputs ...string) error
}

// BundleAssembler combines framework variants into one xcframework.
type BundleAssembler interface {
	CreateBundle(ctx context.Context, output string, frameworks ...string) error
}

// SDKResolver locates an Apple platform SDK and its C compiler.
type SDKResolver interface {
	Resolve(ctx context.Context, sdk string) (*SDK, error)
}

// SDK is a resolved platform SDK.
type SDK struct {
	Name string
	Path string // isysroot
	CC   string // clang from the active developer directory
}

// Lipo implements ArchitectureInspector and ArchitectureMerger with
// lipo(1).
type Lipo struct {
	Runner CommandRunner
}

// Architectures runs `lipo -archs`.
func (l *Lipo) Architectures(ctx context.Context, path string) ([]string, error) {
	out, err := l.Runner.Run(ctx, nil, "lipo", "-archs", path)
	if err != nil {
		return nil, ToolError("lipo -archs", out, err)
	}
	return normalizeSet(strings.Fields(strings.Join(out, " "))), nil
}

// Merge runs `lipo -create`.
func (l *Lipo) Merge(ctx context.Context, output string, inputs ...string) error {
	args := append([]string{"-create"}, inputs...)
	args = append(args, "-output", output)
	out, err := l.Runner.Run(ctx, nil, "lipo", args...)
	if err != nil {
		return ToolError("lipo -create", out, err)
	}
	return nil
}

// NM implements SymbolInspector with nm(1), listing defined external
// symbols only.
type NM struct {
	Runner CommandRunner
}

// Symbols runs `nm -gU`.
func (n *NM) Symbols(ctx context.Context, path string) ([]string, error) {
	out, err := n.Runner.Run(ctx, nil, "nm", "-gU", path)
	if err != nil {
		return nil, ToolError("nm", out, err)
	}
	return out, nil
}

// Xcrun implements SDKResolver.
type Xcrun struct {
	Runner CommandRunner
}

// Resolve asks xcrun for the SDK path and the clang driver.
func (x *Xcrun) Resolve(ctx context.Context, sdk string) (*SDK, error) {
	path, err := x.firstLine(ctx, "--sdk", sdk, "--show-sdk-path")
	if err != nil {
		return nil, newError(MissingPrerequisite, "resolve SDK "+sdk, "", err)
	}
	cc, err := x.firstLine(ctx, "--sdk", sdk, "--find", "clang")
	if err != nil {
		return nil, newError(MissingPrerequisite, "resolve clang for "+sdk, "", err)
	}
	return &SDK{Name: sdk, Path: path, CC: cc}, nil
}

func (x *Xcrun) firstLine(ctx context.Context, args ...string) (string, error) {
	out, err := x.Runner.Run(ctx, nil, "xcrun", args...)
	if err != nil {
		return "", ToolError("xcrun", out, err)
	}
	if len(out) == 0 || strings.TrimSpace(out[0]) == "" {
		return "", fmt.Errorf("xcrun %s printed nothing", strings.Join(args, " "))
	}
	return strings.TrimSpace(out[0]), nil
}

// Xcodebuild implements BundleAssembler with `xcodebuild -create-xcframework`.
type Xcodebuild struct {
	Runner CommandRunner
}

// CreateBundle combines the frameworks into output.
func (x *Xcodebuild) CreateBundle(ctx context.Context, output string, frameworks ...string) error {
	args := []string{"-create-xcframework"}
	for _, fw := range frameworks {
		args = append(args, "-framework", fw)
	}
	args = append(args, "-output", output)

	out, err := x.Runner.Run(ctx, nil, "xcodebuild", args...)
	if err != nil {
		return ToolError("xcodebuild -create-xcframework", out, err)
	}
	return nil
}

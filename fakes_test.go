package wgapple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"howett.net/plist"
)

// Fake archives are text files:
//
//	!<arch>
//	arch arm64
//	sym _wgTurnOn
//
// which the fake inspectors and merger below understand.

func writeFakeArchive(t *testing.T, path string, archs, symbols []string) {
	t.Helper()
	if err := writeFakeArchiveErr(path, archs, symbols); err != nil {
		t.Fatalf("failed to write fake archive %s: %v", path, err)
	}
}

func writeFakeArchiveErr(path string, archs, symbols []string) error {
	var b strings.Builder
	b.WriteString("!<arch>\n")
	for _, a := range archs {
		fmt.Fprintf(&b, "arch %s\n", a)
	}
	for _, s := range symbols {
		fmt.Fprintf(&b, "sym _%s\n", s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func readFakeArchive(path string) (archs, symbols []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "arch "):
			archs = append(archs, strings.TrimPrefix(line, "arch "))
		case strings.HasPrefix(line, "sym "):
			symbols = append(symbols, strings.TrimPrefix(line, "sym "))
		}
	}
	return archs, symbols, nil
}

type fakeArchs struct{}

func (fakeArchs) Architectures(_ context.Context, path string) ([]string, error) {
	archs, _, err := readFakeArchive(path)
	if err != nil {
		return nil, err
	}
	return normalizeSet(archs), nil
}

type fakeSymbols struct{}

func (fakeSymbols) Symbols(_ context.Context, path string) ([]string, error) {
	_, syms, err := readFakeArchive(path)
	if err != nil {
		return nil, err
	}
	var table []string
	for _, s := range syms {
		table = append(table, "0000000000001000 T "+s)
	}
	return table, nil
}

// fakeMerger writes the union of its inputs. dropArch simulates a broken
// merge tool.
type fakeMerger struct {
	dropArch string
	err      error
}

func (m *fakeMerger) Merge(_ context.Context, output string, inputs ...string) error {
	if m.err != nil {
		return m.err
	}
	var archs, syms []string
	for _, in := range inputs {
		a, s, err := readFakeArchive(in)
		if err != nil {
			return err
		}
		archs = append(archs, a...)
		syms = append(syms, s...)
	}
	var kept []string
	for _, a := range normalizeSet(archs) {
		if a != m.dropArch {
			kept = append(kept, a)
		}
	}
	var plain []string
	for _, s := range uniqueStrings(syms) {
		plain = append(plain, strings.TrimPrefix(s, "_"))
	}
	return writeFakeArchiveErr(output, kept, plain)
}

type fakeSDKs struct {
	err error
}

func (f fakeSDKs) Resolve(_ context.Context, sdk string) (*SDK, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &SDK{Name: sdk, Path: "/Applications/Xcode.app/SDKs/" + sdk + ".sdk", CC: "/usr/bin/clang"}, nil
}

// stubCompiler always succeeds unless told otherwise, writing a fake
// archive for the request's target.
type stubCompiler struct {
	cfg *Config

	failOn       string
	archs        map[string][]string // override per target
	noSymbols    bool
	writeNothing bool

	mu    sync.Mutex
	built []string
	envs  map[string]map[string]string
}

func (c *stubCompiler) Name() string { return "Stub" }

func (c *stubCompiler) Compile(_ context.Context, req *CompileRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.built = append(c.built, req.Target.Name)
	if c.envs == nil {
		c.envs = map[string]map[string]string{}
	}
	envCopy := make(map[string]string, len(req.Env))
	for k, v := range req.Env {
		envCopy[k] = v
	}
	c.envs[req.Target.Name] = envCopy

	if req.Target.Name == c.failOn {
		req.Output = append(req.Output, "ld: symbol(s) not found")
		return errors.New("exit status 2")
	}
	if c.writeNothing {
		return nil
	}

	archs := []string{req.Target.CPUArch}
	if override, ok := c.archs[req.Target.Name]; ok {
		archs = override
	}
	var syms []string
	if !c.noSymbols {
		syms = c.cfg.ExpectedSymbols
	}
	return writeFakeArchiveErr(req.OutputPath, archs, syms)
}

// fakeBundler mimics xcodebuild -create-xcframework: one directory per
// library identifier plus a top-level Info.plist.
type fakeBundler struct {
	cfg  *Config
	fail bool
}

func (b *fakeBundler) CreateBundle(_ context.Context, output string, frameworks ...string) error {
	if b.fail {
		// leave debris behind like a crashed tool would
		_ = os.MkdirAll(filepath.Join(output, "ios-arm64"), 0o755)
		_ = os.WriteFile(filepath.Join(output, "ios-arm64", "partial"), []byte("x"), 0o644)
		return errors.New("xcodebuild exited with status 70")
	}

	info := XCFrameworkInfo{PackageType: "XFWK", FormatVersion: "1.0"}
	for _, fw := range frameworks {
		platform := filepath.Base(filepath.Dir(fw))
		pc := b.cfg.Platform(platform)
		dest := filepath.Join(output, pc.LibraryIdentifier, filepath.Base(fw))
		if err := copyTree(fw, dest, nil); err != nil {
			return err
		}
		info.AvailableLibraries = append(info.AvailableLibraries, XCFrameworkLibrary{
			LibraryIdentifier:        pc.LibraryIdentifier,
			LibraryPath:              filepath.Base(fw),
			SupportedArchitectures:   b.cfg.Architectures(platform),
			SupportedPlatform:        "ios",
			SupportedPlatformVariant: pc.SupportedPlatformVariant,
		})
	}
	data, err := plist.MarshalIndent(info, plist.XMLFormat, "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(output, "Info.plist"), data, 0o644)
}

type runnerCall struct {
	name string
	args []string
	env  map[string]string
}

// fakeRunner records every command and answers through handle.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runnerCall
	handle func(name string, args []string) ([]string, error)
}

func (r *fakeRunner) Run(_ context.Context, env map[string]string, name string, args ...string) ([]string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runnerCall{name: name, args: append([]string(nil), args...), env: env})
	handle := r.handle
	r.mu.Unlock()

	if handle == nil {
		return nil, nil
	}
	return handle(name, args)
}

func (r *fakeRunner) callsTo(base string) []runnerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runnerCall
	for _, c := range r.calls {
		if filepath.Base(c.name) == base {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// defaultHandle answers `go env GOVERSION` and accepts every patch.
func defaultHandle(name string, args []string) ([]string, error) {
	if filepath.Base(name) == "go" && len(args) == 2 && args[0] == "env" && args[1] == "GOVERSION" {
		return []string{"go1.22.3"}, nil
	}
	return nil, nil
}

type testEnv struct {
	cfg      *Config
	runner   *fakeRunner
	compiler *stubCompiler
	merger   *fakeMerger
	bundler  *fakeBundler
	tools    Toolset
}

// newTestEnv lays out a project with a fake GOROOT, the library sources
// and the package-hook files, and wires every seam to a fake.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig(root)

	goroot := filepath.Join(root, "goroot")
	cfg.ToolchainSource = goroot

	write := func(path, content string) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	write(filepath.Join(goroot, "bin", "go"), "#!/bin/sh\n")
	write(filepath.Join(goroot, "VERSION"), "go1.22.3\n")
	write(filepath.Join(goroot, "src", "runtime", "os_darwin.go"), "package runtime\n")
	write(filepath.Join(goroot, "pkg", "obj", "go-build", "00", "cache-a"), "cache\n")

	write(filepath.Join(cfg.LibrarySource, "wireguard.h"), "extern int wgTurnOn(const char *settings, int32_t tun_fd);\n")
	write(filepath.Join(cfg.LibrarySource, "goruntime-boottime-over-monotonic.diff"), "--- a/src/runtime/os_darwin.go\n")
	write(filepath.Join(cfg.LibrarySource, "goruntime-alpha.diff"), "--- a/src/runtime/os_darwin.go\n")

	write(filepath.Join(root, "Sources", "WireGuardKit", "WireGuardAdapter.swift"), "import Foundation\n")
	write(filepath.Join(root, "Sources", "WireGuardKitC", "WireGuardKitC.h"), "#include \"key.h\"\n")
	write(filepath.Join(root, "scripts", "build.sh"), "#!/bin/sh\n")

	runner := &fakeRunner{handle: defaultHandle}
	compiler := &stubCompiler{cfg: cfg}
	merger := &fakeMerger{}
	bundler := &fakeBundler{cfg: cfg}

	return &testEnv{
		cfg:      cfg,
		runner:   runner,
		compiler: compiler,
		merger:   merger,
		bundler:  bundler,
		tools: Toolset{
			Compiler: compiler,
			SDKs:     fakeSDKs{},
			Archs:    fakeArchs{},
			Symbols:  fakeSymbols{},
			Merger:   merger,
			Bundler:  bundler,
			Runner:   runner,
		},
	}
}

func (e *testEnv) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(e.cfg, e.tools)
	if err != nil {
		t.Fatalf("NewPipeline returned error: %v", err)
	}
	p.Out = io.Discard
	return p
}

func (e *testEnv) driver() *Driver {
	return &Driver{
		Config:   e.cfg,
		Compiler: e.compiler,
		SDKs:     fakeSDKs{},
		Archs:    fakeArchs{},
		Symbols:  fakeSymbols{},
	}
}

func (e *testEnv) toolchain(t *testing.T) *ToolchainRoot {
	t.Helper()
	root := &ToolchainRoot{Dir: e.cfg.ToolchainDir()}
	if err := os.MkdirAll(filepath.Join(root.Dir, "bin"), 0o755); err != nil {
		t.Fatalf("failed to create toolchain: %v", err)
	}
	return root
}

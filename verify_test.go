package wgapple

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// builtBundle assembles a complete xcframework from fake archives.
func builtBundle(t *testing.T, env *testEnv) string {
	t.Helper()
	a := &Assembler{Config: env.cfg, Bundler: env.bundler}
	bundle, err := a.AssembleBundle(context.Background(), assembleVariants(t, env, a)...)
	if err != nil {
		t.Fatalf("AssembleBundle returned error: %v", err)
	}
	return bundle.Path
}

func newGate(env *testEnv) *Gate {
	return &Gate{Config: env.cfg, Archs: fakeArchs{}, Symbols: fakeSymbols{}}
}

func checkNames(r *VerificationReport) []string {
	var names []string
	for _, c := range r.Checks {
		names = append(names, c.Name)
	}
	return names
}

func TestGatePassesCompleteBundle(t *testing.T) {
	env := newTestEnv(t)
	path := builtBundle(t, env)

	report := newGate(env).Verify(context.Background(), path)
	if !report.OK() {
		t.Fatalf("expected bundle to pass, failed checks: %+v", report.FailedChecks())
	}
	if report.Err() != nil {
		t.Fatalf("expected nil error, got %v", report.Err())
	}
	if report.Passed != len(report.Checks) {
		t.Fatalf("tally mismatch: %d passed of %d", report.Passed, len(report.Checks))
	}
	if len(report.Sizes) != 2 || report.TotalSize == 0 {
		t.Fatalf("expected size information for both variants, got %+v (total %d)", report.Sizes, report.TotalSize)
	}
	if !reflect.DeepEqual(report.Sizes[1].Architectures, []string{"arm64", "x86_64"}) {
		t.Fatalf("unexpected simulator architectures %v", report.Sizes[1].Architectures)
	}
}

func TestGateIsReadOnlyAndRepeatable(t *testing.T) {
	env := newTestEnv(t)
	path := builtBundle(t, env)
	before := snapshotTree(t, path)

	gate := newGate(env)
	first := gate.Verify(context.Background(), path)
	second := gate.Verify(context.Background(), path)

	if first.Passed != second.Passed || first.Failed != second.Failed {
		t.Fatalf("counts changed between runs: %d/%d vs %d/%d", first.Passed, first.Failed, second.Passed, second.Failed)
	}
	if !reflect.DeepEqual(before, snapshotTree(t, path)) {
		t.Fatal("verification modified the bundle")
	}
}

func TestGateReportsEveryCheckOnFailure(t *testing.T) {
	env := newTestEnv(t)
	path := builtBundle(t, env)
	gate := newGate(env)
	good := gate.Verify(context.Background(), path)

	id := env.cfg.Platform(PlatformSimulator).LibraryIdentifier
	moduleMap := filepath.Join(path, id, "WireGuardKitGo.framework", "Modules", "module.modulemap")
	if err := os.Remove(moduleMap); err != nil {
		t.Fatalf("remove module map: %v", err)
	}

	bad := gate.Verify(context.Background(), path)
	if bad.OK() {
		t.Fatal("expected verification to fail")
	}
	if !reflect.DeepEqual(checkNames(bad), checkNames(good)) {
		t.Fatalf("checklist changed on failure:\n got %v\nwant %v", checkNames(bad), checkNames(good))
	}
	failed := bad.FailedChecks()
	if len(failed) != 1 || failed[0].Name != id+" module map" {
		t.Fatalf("expected only the module map check to fail, got %+v", failed)
	}
	if !IsKind(bad.Err(), VerificationFailure) {
		t.Fatalf("expected VerificationFailure, got %v", bad.Err())
	}
}

func TestGateMissingBundle(t *testing.T) {
	env := newTestEnv(t)
	report := newGate(env).Verify(context.Background(), env.cfg.BundlePath())

	if report.OK() {
		t.Fatal("expected a missing bundle to fail")
	}
	if report.Passed != 0 {
		t.Fatalf("expected no passing checks, got %d", report.Passed)
	}
	if report.TotalSize != 0 {
		t.Fatalf("expected zero size, got %d", report.TotalSize)
	}
}

func TestGateDetectsThinSimulatorBinary(t *testing.T) {
	env := newTestEnv(t)
	path := builtBundle(t, env)

	id := env.cfg.Platform(PlatformSimulator).LibraryIdentifier
	binary := filepath.Join(path, id, "WireGuardKitGo.framework", "WireGuardKitGo")
	writeFakeArchive(t, binary, []string{"arm64"}, env.cfg.ExpectedSymbols[:2])

	report := newGate(env).Verify(context.Background(), path)
	var failed []string
	for _, c := range report.FailedChecks() {
		failed = append(failed, c.Name)
	}
	want := []string{id + " architectures", id + " exported symbols"}
	if !reflect.DeepEqual(failed, want) {
		t.Fatalf("expected %v to fail, got %v", want, failed)
	}
}

func TestWriteReport(t *testing.T) {
	env := newTestEnv(t)
	path := builtBundle(t, env)
	report := newGate(env).Verify(context.Background(), path)

	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		t.Fatalf("WriteReport returned error: %v", err)
	}
	out := buf.String()

	summary := fmt.Sprintf("Verification summary: Total: %d  Passed: %d  Failed: 0", len(report.Checks), report.Passed)
	for _, want := range []string{"bundle exists", "PASS", "bundle total", summary} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestHumanSize(t *testing.T) {
	testCases := map[int64]string{
		0:                "0 B",
		1023:             "1023 B",
		1536:             "1.5 KiB",
		25 * 1024 * 1024: "25.0 MiB",
	}
	for in, want := range testCases {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %s, want %s", in, got, want)
		}
	}
}

// snapshotTree records every path under root with its size and mtime.
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	snap := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		snap[path] = fmt.Sprintf("%s/%d", info.ModTime(), info.Size())
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return snap
}

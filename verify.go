package wgapple

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Check is one entry of the verification checklist.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// SizeEntry is one row of the informational size/architecture report.
type SizeEntry struct {
	Variant       string
	Architectures []string
	Size          int64
}

// VerificationReport is the outcome of one gate run.
type VerificationReport struct {
	Bundle string
	Checks []Check
	Passed int
	Failed int

	// Sizes is informational and never affects Passed/Failed.
	Sizes     []SizeEntry
	TotalSize int64
}

// OK reports whether every check passed.
func (r *VerificationReport) OK() bool {
	return r.Failed == 0
}

// FailedChecks returns the checks that did not pass, in checklist order.
func (r *VerificationReport) FailedChecks() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Err returns a VerificationFailure naming every failed check, or nil.
func (r *VerificationReport) Err() error {
	if r.OK() {
		return nil
	}
	var names []string
	for _, c := range r.FailedChecks() {
		names = append(names, c.Name)
	}
	return newError(VerificationFailure, fmt.Sprintf("%d of %d checks failed", r.Failed, len(r.Checks)), r.Bundle,
		fmt.Errorf("%s", strings.Join(names, "; ")))
}

func (r *VerificationReport) record(name string, passed bool, detail string) bool {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: detail})
	if passed {
		r.Passed++
	} else {
		r.Failed++
		errorf(phaseVerify, "FAIL %s: %s", name, detail)
	}
	return passed
}

// Gate is the read-only verification pass over a finished bundle.
type Gate struct {
	Config  *Config
	Archs   ArchitectureInspector
	Symbols SymbolInspector
}

// Verify runs the whole checklist against the bundle at bundlePath.
//
// Verify never modifies the bundle and never stops at the first failure:
// every check is run and tallied so one run surfaces the full defect list.
// Running it twice on an unchanged bundle yields the same counts.
func (g *Gate) Verify(ctx context.Context, bundlePath string) *VerificationReport {
	cfg := g.Config
	r := &VerificationReport{Bundle: bundlePath}

	r.record("bundle exists", isDir(bundlePath), bundlePath)

	topInfo := filepath.Join(bundlePath, "Info.plist")
	listed := map[string]bool{}
	if r.record("top-level Info.plist exists", fileExists(topInfo), topInfo) {
		info, err := ReadXCFrameworkInfo(topInfo)
		if err != nil {
			r.record("top-level Info.plist parses", false, err.Error())
		} else {
			r.record("top-level Info.plist parses", true, fmt.Sprintf("%d libraries", len(info.AvailableLibraries)))
			for _, lib := range info.AvailableLibraries {
				listed[lib.LibraryIdentifier] = true
			}
		}
	} else {
		r.record("top-level Info.plist parses", false, "Info.plist missing")
	}

	for _, pc := range cfg.Platforms {
		id := pc.LibraryIdentifier
		dir := filepath.Join(bundlePath, id)
		fw := filepath.Join(dir, cfg.BundleName+".framework")
		binary := filepath.Join(fw, cfg.BundleName)
		want := cfg.Architectures(pc.Name)

		r.record(id+" listed in Info.plist", listed[id], topInfo)
		r.record(id+" directory exists", isDir(dir), dir)

		size, err := nonEmptyFile(binary)
		binaryOK := r.record(id+" binary exists", err == nil, detail(binary, err))

		if binaryOK {
			archs, err := g.Archs.Architectures(ctx, binary)
			if err != nil {
				r.record(id+" architectures", false, err.Error())
			} else {
				r.record(id+" architectures", sameSet(archs, want), fmt.Sprintf("have %s, want %s", formatSet(archs), formatSet(want)))
				r.Sizes = append(r.Sizes, SizeEntry{Variant: id, Architectures: normalizeSet(archs), Size: size})
			}

			table, err := g.Symbols.Symbols(ctx, binary)
			if err != nil {
				r.record(id+" exported symbols", false, err.Error())
			} else {
				missing := MissingSymbols(table, cfg.ExpectedSymbols)
				r.record(id+" exported symbols", len(missing) == 0, missingDetail(missing))
			}
		} else {
			r.record(id+" architectures", false, "binary missing")
			r.record(id+" exported symbols", false, "binary missing")
		}

		headers := []string{
			filepath.Join(fw, "Headers", cfg.BundleName+".h"),
			filepath.Join(fw, "Headers", filepath.Base(cfg.PublicHeader)),
		}
		var missingHeaders []string
		for _, h := range headers {
			if !fileExists(h) {
				missingHeaders = append(missingHeaders, filepath.Base(h))
			}
		}
		r.record(id+" headers", len(missingHeaders) == 0, missingDetail(missingHeaders))

		moduleMap := filepath.Join(fw, "Modules", "module.modulemap")
		r.record(id+" module map", fileExists(moduleMap), moduleMap)

		plistPath := filepath.Join(fw, "Info.plist")
		r.record(id+" Info.plist", fileExists(plistPath), plistPath)
	}

	if isDir(bundlePath) {
		r.TotalSize = dirSize(bundlePath)
	}

	logf(phaseVerify, "%d passed, %d failed", r.Passed, r.Failed)
	return r
}

func detail(path string, err error) string {
	if err != nil {
		return err.Error()
	}
	return path
}

func missingDetail(missing []string) string {
	if len(missing) == 0 {
		return "ok"
	}
	return "missing " + strings.Join(missing, ", ")
}

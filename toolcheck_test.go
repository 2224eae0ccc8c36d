package wgapple

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheckRequiredTools(t *testing.T) {
	origLookPath := execLookPath
	defer func() { execLookPath = origLookPath }()

	installed := map[string]bool{"xcrun": true, "lipo": true, "gpatch": true}
	execLookPath = func(name string) (string, error) {
		if installed[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}

	reqs := []ToolRequirement{
		{Name: "xcrun"},
		{Name: "patch", Alternatives: []string{"gpatch"}},
		{Name: "swiftlint", Optional: true},
	}
	if err := CheckRequiredTools(reqs); err != nil {
		t.Fatalf("expected requirements to be satisfied, got %v", err)
	}

	err := CheckRequiredTools(append(reqs, ToolRequirement{Name: "nm", Purpose: "inspect exported symbols"}))
	if !IsKind(err, MissingPrerequisite) {
		t.Fatalf("expected MissingPrerequisite, got %v", err)
	}
	if !strings.Contains(err.Error(), "nm (inspect exported symbols) not found in PATH") {
		t.Fatalf("unexpected error message: %v", err)
	}

	err = CheckRequiredTools([]ToolRequirement{{Name: "nm"}, {Name: "xcodebuild"}})
	if err == nil || !strings.Contains(err.Error(), "missing required tools: nm, xcodebuild") {
		t.Fatalf("expected both tools reported, got %v", err)
	}
}

func TestCheckMinimumVersion(t *testing.T) {
	testCases := []struct {
		have, min string
		ok        bool
	}{
		{"v1.22.3", "1.21", true},
		{"go1.21", "1.21", true},
		{"v1.20.14", "1.21", false},
		{"v1.21.0", "go1.21.1", false},
		{"devel", "1.21", false},
	}

	for _, tc := range testCases {
		t.Run(tc.have+">="+tc.min, func(t *testing.T) {
			err := CheckMinimumVersion(tc.have, tc.min)
			if tc.ok && err != nil {
				t.Fatalf("expected %s to satisfy %s, got %v", tc.have, tc.min, err)
			}
			if !tc.ok && !IsKind(err, MissingPrerequisite) {
				t.Fatalf("expected MissingPrerequisite, got %v", err)
			}
		})
	}
}

func TestToolchainVersion(t *testing.T) {
	testCases := []struct {
		output string
		want   string
	}{
		{"go1.22.3", "v1.22.3"},
		{"go1.23rc1", "v1.23"},
		{"go1.21", "v1.21"},
	}

	for _, tc := range testCases {
		t.Run(tc.output, func(t *testing.T) {
			runner := &fakeRunner{handle: func(string, []string) ([]string, error) {
				return []string{tc.output}, nil
			}}
			got, err := ToolchainVersion(context.Background(), runner, "/goroot")
			if err != nil {
				t.Fatalf("ToolchainVersion returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			call := runner.calls[0]
			if call.name != "/goroot/bin/go" || call.env["GOROOT"] != "/goroot" || call.env["GOTOOLCHAIN"] != "local" {
				t.Fatalf("unexpected invocation %+v", call)
			}
		})
	}

	runner := &fakeRunner{handle: func(string, []string) ([]string, error) {
		return []string{"garbage"}, nil
	}}
	if _, err := ToolchainVersion(context.Background(), runner, "/goroot"); err == nil {
		t.Fatal("expected error for unrecognised output")
	}
}

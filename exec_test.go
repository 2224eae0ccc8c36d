package wgapple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"testing"
)

func helperArgs(exitCode int) []string {
	return []string{"-test.run=TestHelperProcess", "--", strconv.Itoa(exitCode)}
}

func helperEnv(extra map[string]string) map[string]string {
	env := map[string]string{"GO_WANT_HELPER_PROCESS": "1"}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func TestShellRunnerCapturesOutputAndEnv(t *testing.T) {
	runner := &ShellRunner{}
	env := helperEnv(map[string]string{"WGAPPLE_TEST_VALUE": "arm64"})

	out, err := runner.Run(context.Background(), env, os.Args[0], helperArgs(0)...)
	if err != nil {
		t.Fatalf("expected helper to succeed, got %v", err)
	}

	want := []string{"helper stdout", "value=arm64", "helper stderr"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("unexpected output:\n got %v\nwant %v", out, want)
	}

	if v, ok := os.LookupEnv("WGAPPLE_TEST_VALUE"); ok {
		t.Fatalf("per-command env leaked into the process environment: %q", v)
	}
}

func TestShellRunnerReportsExitStatus(t *testing.T) {
	runner := &ShellRunner{}

	out, err := runner.Run(context.Background(), helperEnv(nil), os.Args[0], helperArgs(3)...)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if code := ExitStatus(err); code != 3 {
		t.Fatalf("expected exit status 3, got %d (%v)", code, err)
	}
	if len(out) == 0 {
		t.Fatal("expected output of the failed command to be returned")
	}
}

func TestShellRunnerCommandNotFound(t *testing.T) {
	origExec := shellExec
	defer func() { shellExec = origExec }()

	shellExec = func(map[string]string, io.Writer, io.Writer, string, ...string) (bool, error) {
		return false, errors.New(`exec: "xcodebuild": executable file not found in $PATH`)
	}

	_, err := (&ShellRunner{}).Run(context.Background(), nil, "xcodebuild", "-version")
	if err == nil {
		t.Fatal("expected error when the command cannot start")
	}
	if ExitStatus(err) != 1 {
		t.Fatalf("expected generic exit status 1, got %d", ExitStatus(err))
	}
}

func TestShellRunnerHonoursCancelledContext(t *testing.T) {
	origExec := shellExec
	defer func() { shellExec = origExec }()

	called := false
	shellExec = func(map[string]string, io.Writer, io.Writer, string, ...string) (bool, error) {
		called = true
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (&ShellRunner{}).Run(ctx, nil, "lipo", "-archs"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("command ran despite cancelled context")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	fmt.Fprintln(os.Stdout, "helper stdout")
	fmt.Fprintf(os.Stdout, "value=%s\n", os.Getenv("WGAPPLE_TEST_VALUE"))
	fmt.Fprintln(os.Stderr, "helper stderr")

	for i := 0; i < len(os.Args); i++ {
		if os.Args[i] == "--" && i+1 < len(os.Args) {
			code, err := strconv.Atoi(os.Args[i+1])
			if err != nil {
				os.Exit(1)
			}
			os.Exit(code)
		}
	}

	os.Exit(0)
}

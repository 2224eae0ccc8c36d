package wgapple

import "context"

// Compiler is the external toolchain invocation that turns the library
// source into one static archive for one target.
//
// # Example Implementation
//
//	type StubCompiler struct{}
//
//	func (c *StubCompiler) Name() string { return "Stub" }
//
//	func (c *StubCompiler) Compile(ctx context.Context, req *CompileRequest) error {
//	    return os.WriteFile(req.OutputPath, []byte("!<arch>\n"), 0o644)
//	}
//
// Implementations must write exactly req.OutputPath and must only use req.Env
// for environment changes.
type Compiler interface {
	// Name is used in error messages and logs, e.g. "Go".
	Name() string

	// Compile runs the toolchain. Captured output lines are appended to
	// req.Output so failures can be reported with context.
	Compile(ctx context.Context, req *CompileRequest) error
}

// CompileRequest carries everything one target build needs.
type CompileRequest struct {
	Target    BuildTarget
	Platform  PlatformClass
	Toolchain *ToolchainRoot
	SDK       *SDK

	// Env is the per-invocation environment, layered on top of the
	// process environment for the compiler subprocess only.
	Env map[string]string

	// OutputPath is the fixed archive path for the target.
	OutputPath string

	// Output lines captured from the toolchain.
	Output []string
}

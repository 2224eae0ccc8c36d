package wgapple

import "context"

// runTargetSteps executes the configure/build/validate pattern for one
// target.
//
// # Process Flow
//
//  1. Call ConfigureFunc to resolve the SDK and compose the environment
//  2. Call BuildFunc to run the compiler
//  3. Call ValidateFunc to inspect the archive
//
// If any step fails, processing stops and the error is returned. The
// artifact is only returned after ValidateFunc succeeded.
func runTargetSteps(ctx context.Context, req *CompileRequest, steps TargetSteps) (*Artifact, error) {
	if err := steps.ConfigureFunc(ctx, req); err != nil {
		return nil, err
	}

	if err := steps.BuildFunc(ctx, req); err != nil {
		return nil, err
	}

	return steps.ValidateFunc(ctx, req)
}

// Package wgapple builds the wireguard-go bridge into WireGuardKitGo.xcframework.
//
// The package drives the Go toolchain and the Xcode command-line tools
// through a strictly sequential, fail-fast pipeline and verifies the result
// before it is considered release ready.
//
// # Pipeline
//
//	Config (registry)
//	└── Preparer      patched GOROOT copy under <build>/toolchain
//	    └── Driver    go build -buildmode=c-archive per target
//	        └── Merger        lipo -create for the simulator archives
//	            └── Assembler .framework variants + xcodebuild -create-xcframework
//	                └── Gate  read-only verification report
//
// # Basic Usage
//
//	cfg := wgapple.DefaultConfig("/path/to/wireguard-apple")
//	p, err := wgapple.NewPipeline(cfg, wgapple.HostTools(cfg))
//	if err != nil {
//	    return err
//	}
//	if err := p.RunAll(ctx); err != nil {
//	    os.Exit(wgapple.ExitStatus(err))
//	}
//
// The three phases (BuildLibraries, Package, Verify) can also be run as
// separate processes; each one only reads what the previous one left on
// disk. See cmd/wgapple and the mage targets in magefiles/.
//
// # Testing
//
// Every external tool sits behind a small interface (Compiler, SDKResolver,
// ArchitectureInspector, SymbolInspector, ArchitectureMerger,
// BundleAssembler) so the pipeline can run against deterministic fakes.
//
// # Platform Support
//
// Building requires macOS with Xcode. Configuration, verification of an
// existing bundle and the package tests run anywhere.
package wgapple

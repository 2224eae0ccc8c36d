//go:build mage

// Mage targets for the xcframework pipeline. Run `mage -l` for the list.
package main

import (
	"context"
	"os"

	"github.com/magefile/mage/mg"

	wgapple "github.com/taofu-labs/wireguard-apple"
)

var Default = All

func pipeline() (*wgapple.Pipeline, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := wgapple.LoadConfig("wgapple.yaml", root)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = mg.Verbose()
	return wgapple.NewPipeline(cfg, wgapple.HostTools(cfg))
}

// fatal hands mage the exit status of a failed external command.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	return mg.Fatal(wgapple.ExitStatus(err), err)
}

// Build prepares the Go toolchain and builds libwg-go.a for every target.
func Build(ctx context.Context) error {
	p, err := pipeline()
	if err != nil {
		return err
	}
	_, err = p.BuildLibraries(ctx)
	return fatal(err)
}

// Package merges the simulator archives and creates WireGuardKitGo.xcframework.
func Package(ctx context.Context) error {
	p, err := pipeline()
	if err != nil {
		return err
	}
	_, err = p.Package(ctx)
	return fatal(err)
}

// Verify checks the xcframework and prints the report.
func Verify(ctx context.Context) error {
	p, err := pipeline()
	if err != nil {
		return err
	}
	_, err = p.Verify(ctx)
	return fatal(err)
}

// All runs build, package and verify in order.
func All(ctx context.Context) {
	mg.SerialCtxDeps(ctx, Build, Package, Verify)
}

// Command wgapple builds, packages and verifies WireGuardKitGo.xcframework.
//
//	wgapple build     phase 1: prepare the toolchain and build the archives
//	wgapple package   phase 2: merge, assemble and create the xcframework
//	wgapple verify    phase 3: verify the xcframework
//	wgapple all       phases 1 to 3
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	wgapple "github.com/taofu-labs/wireguard-apple"
)

var (
	flagProject   string
	flagConfig    string
	flagBuildRoot string
	flagArchive   string
	flagVerbose   bool
)

func main() {
	root := &cobra.Command{
		Use:           "wgapple",
		Short:         "Build WireGuardKitGo.xcframework from the wireguard-go bridge",
		SilenceUsage:  true, // do not print usage on build errors
		SilenceErrors: true, // errors are logged by the pipeline
	}

	cwd, _ := os.Getwd()
	root.PersistentFlags().StringVar(&flagProject, "project", env.Str("WGAPPLE_PROJECT_ROOT", cwd), "project root")
	root.PersistentFlags().StringVar(&flagConfig, "config", env.Str("WGAPPLE_CONFIG", "wgapple.yaml"), "YAML overrides, relative to the project root")
	root.PersistentFlags().StringVar(&flagBuildRoot, "build-root", env.Str("WGAPPLE_BUILD_ROOT"), "override the build root")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", env.Bool("WGAPPLE_VERBOSE"), "log every external command and its output")

	// glog flags (-v, -logtostderr, ...)
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	_ = flag.Set("logtostderr", "true")

	root.AddCommand(
		phaseCommand("build", "Phase 1: prepare the Go toolchain and build every target", func(ctx context.Context, p *wgapple.Pipeline) error {
			_, err := p.BuildLibraries(ctx)
			return err
		}),
		phaseCommand("package", "Phase 2: merge simulator archives and create the xcframework", func(ctx context.Context, p *wgapple.Pipeline) error {
			_, err := p.Package(ctx)
			return err
		}),
		phaseCommand("verify", "Phase 3: verify the xcframework", func(ctx context.Context, p *wgapple.Pipeline) error {
			_, err := p.Verify(ctx)
			return err
		}),
		phaseCommand("all", "Run phases 1 to 3", func(ctx context.Context, p *wgapple.Pipeline) error {
			return p.RunAll(ctx)
		}),
	)
	for _, name := range []string{"verify", "all"} {
		if cmd, _, err := root.Find([]string{name}); err == nil {
			cmd.Flags().StringVar(&flagArchive, "archive", "none", "release archive after verification: none, zst, xz")
		}
	}

	err := root.ExecuteContext(context.Background())
	if err != nil {
		var pe *wgapple.PipelineError
		if !errors.As(err, &pe) {
			glog.Errorf("%v", err)
		}
	}
	glog.Flush()
	if err != nil {
		os.Exit(wgapple.ExitStatus(err))
	}
}

func phaseCommand(use, short string, run func(context.Context, *wgapple.Pipeline) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := newPipeline()
			if err != nil {
				return err
			}
			return run(cmd.Context(), p)
		},
	}
}

func newPipeline() (*wgapple.Pipeline, error) {
	project, err := filepath.Abs(flagProject)
	if err != nil {
		return nil, err
	}

	configPath := flagConfig
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(project, configPath)
	}
	cfg, err := wgapple.LoadConfig(configPath, project)
	if err != nil {
		return nil, err
	}
	if flagBuildRoot != "" {
		if cfg.BuildRoot, err = filepath.Abs(flagBuildRoot); err != nil {
			return nil, err
		}
	}
	cfg.Verbose = cfg.Verbose || flagVerbose

	p, err := wgapple.NewPipeline(cfg, wgapple.HostTools(cfg))
	if err != nil {
		return nil, err
	}
	if p.Archive, err = wgapple.ParseArchiveFormat(flagArchive); err != nil {
		return nil, err
	}
	return p, nil
}

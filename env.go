package wgapple

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// targetFlags composes the clang flags for one target. The minimum-version
// flag spelling comes from the platform class, so device and simulator
// builds differ here.
func targetFlags(cfg *Config, target BuildTarget, platform PlatformClass, sdk *SDK) []string {
	flags := []string{"-arch", target.CPUArch, "-isysroot", sdk.Path}
	if platform.MinVersionFlag != "" && cfg.MinPlatformVersion != "" {
		flags = append(flags, fmt.Sprintf("%s=%s", platform.MinVersionFlag, cfg.MinPlatformVersion))
	}
	return flags
}

// targetEnv builds the environment for one compiler invocation.
//
// The returned map is layered over the process environment by the runner
// for that single subprocess. It is rebuilt for every target, so values
// from one target never reach the next.
func targetEnv(cfg *Config, target BuildTarget, platform PlatformClass, toolchain *ToolchainRoot, sdk *SDK) map[string]string {
	flags := strings.Join(targetFlags(cfg, target, platform, sdk), " ")

	env := map[string]string{
		"GOROOT":      toolchain.Dir,
		"PATH":        filepath.Join(toolchain.Dir, "bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
		"GOOS":        target.GOOS,
		"GOARCH":      target.GOARCH,
		"CGO_ENABLED": "1",
		"GOTOOLCHAIN": "local",
		"CGO_CFLAGS":  flags,
		"CGO_LDFLAGS": flags,
	}
	if sdk.CC != "" {
		env["CC"] = sdk.CC
	}
	return env
}

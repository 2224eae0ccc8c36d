package wgapple

import (
	"fmt"

	"github.com/golang/glog"
)

// Phase labels used in log lines.
const (
	phaseToolchain = "toolchain"
	phaseBuild     = "build"
	phaseMerge     = "merge"
	phaseAssemble  = "assemble"
	phaseVerify    = "verify"
	phaseArchive   = "archive"
)

func logf(phase, format string, args ...any) {
	glog.InfoDepth(1, fmt.Sprintf("[%s] ", phase)+fmt.Sprintf(format, args...))
}

func warnf(phase, format string, args ...any) {
	glog.WarningDepth(1, fmt.Sprintf("[%s] ", phase)+fmt.Sprintf(format, args...))
}

func errorf(phase, format string, args ...any) {
	glog.ErrorDepth(1, fmt.Sprintf("[%s] ", phase)+fmt.Sprintf(format, args...))
}

// debugf logs at verbosity 1 (-v=1).
func debugf(phase, format string, args ...any) {
	if glog.V(1) {
		glog.InfoDepth(1, fmt.Sprintf("[%s] ", phase)+fmt.Sprintf(format, args...))
	}
}

func logOutput(phase string, lines []string) {
	for _, line := range lines {
		debugf(phase, "  %s", line)
	}
}

package wgapple

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchesPattern checks if a value matches any of the given regex patterns.
//
// Invalid patterns are silently skipped.
//
// # Example
//
//	if MatchesPattern(line, `previously applied`, `Reversed .* patch detected`) {
//	    // patch was already applied
//	}
func MatchesPattern(value string, patterns ...string) bool {
	for _, pattern := range patterns {
		if matched, _ := regexp.MatchString(pattern, value); matched {
			return true
		}
	}
	return false
}

// MissingSymbols returns the expected symbols that do not occur in the
// symbol table dump.
//
// The check is a substring heuristic: a symbol counts as present when a
// line of the table ends with it, optionally preceded by the Mach-O
// leading underscore. It does not understand mangling schemes.
func MissingSymbols(table []string, expected []string) []string {
	var missing []string
	for _, sym := range expected {
		pattern := `(^|[\s_])` + regexp.QuoteMeta(sym) + `$`
		found := false
		for _, line := range table {
			if MatchesPattern(strings.TrimSpace(line), pattern) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, sym)
		}
	}
	return missing
}

// BuildError creates a standardized compiler error with output context.
//
// # Format
//
// With error and output:
//
//	Go build failed: exit status 2
//
//	Build output:
//	# golang.zx2c4.com/wireguard/ios
//	api-apple.go:12: undefined: foo
//
// With error but no output:
//
//	Go build failed: exit status 2
func BuildError(tool string, output []string, err error) error {
	return outputError(tool+" build failed", "Build output", output, err)
}

// ToolError is BuildError for tools that inspect or package rather than
// build:
//
//	lipo -archs failed: exit status 1
func ToolError(tool string, output []string, err error) error {
	return outputError(tool+" failed", "Output", output, err)
}

func outputError(prefix, heading string, output []string, err error) error {
	outputStr := strings.TrimSpace(strings.Join(output, "\n"))

	var detail string
	if outputStr != "" {
		detail = fmt.Sprintf("\n\n%s:\n%s", heading, outputStr)
	}

	if err != nil {
		return fmt.Errorf("%s: %w%s", prefix, err, detail)
	}
	return fmt.Errorf("%s%s", prefix, detail)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Package flagx lets several components share one command line: each one
// picks out the flags it owns and parses them with its own FlagSet, so an
// unknown flag meant for someone else never aborts parsing.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs keeps only the allowed flags from args, together with their
// values. Both "-f value" and "-f=value" forms are recognised; a token
// starting with "-" is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// Positional returns the arguments that are neither flags nor values of the
// flags listed in valuedFlags, preserving their order.
func Positional(args []string, valuedFlags []string) []string {
	valued := make(map[string]struct{}, len(valuedFlags))
	for _, f := range valuedFlags {
		valued[f] = struct{}{}
	}

	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			rest = append(rest, arg)
			continue
		}
		if strings.Contains(arg, "=") {
			continue
		}
		if _, ok := valued[arg]; ok && i+1 < len(args) {
			i++
		}
	}
	return rest
}

// Command returns args from the first positional argument onward, so a
// subcommand keeps its own flags. Flags before it are skipped like in
// Positional.
func Command(args []string, valuedFlags []string) []string {
	valued := make(map[string]struct{}, len(valuedFlags))
	for _, f := range valuedFlags {
		valued[f] = struct{}{}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			return args[i:]
		}
		if strings.Contains(arg, "=") {
			continue
		}
		if _, ok := valued[arg]; ok && i+1 < len(args) {
			i++
		}
	}
	return nil
}

// ConfigPath extracts the JSON config file path given with -c or -config.
// It returns "" when neither flag is present; the last occurrence wins.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}

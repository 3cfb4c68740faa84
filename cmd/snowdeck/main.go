// Package main provides the snowdeck binary: deployment of Streamlit-style
// applications from a git monorepo to a warehouse platform.
//
// Usage:
//
//	snowdeck [-config file] <command> [flags...]
//
// Commands:
//
//	deploy    - Deploy one, all or changed applications
//	apps      - List applications discovered in the repo
//	deployed  - List applications live in the warehouse
//	delete    - Remove one deployed application
//	sync      - Refresh the warehouse git mirror
//	validate  - Check every manifest without deploying
//	history   - Show journaled runs
//	serve     - Run the HTTP status API
//	version   - Show version
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess        = 0
	ExitTotalFailure   = 1
	ExitPartialFailure = 2
	ExitUsageError     = 3
	ExitConfigError    = 4
	ExitRemoteError    = 5
	ExitHistoryError   = 6
	ExitServerError    = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("snowdeck", flag.ContinueOnError)
	configPath := flags.String("config", "", "Path to config file")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() { printUsage(flags) }

	if err := flags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *showVersion {
		fmt.Printf("snowdeck %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return ExitUsageError
	}

	cmd := flags.Arg(0)
	cmdArgs := flags.Args()[1:]

	if cmd == "version" {
		fmt.Printf("snowdeck %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	logger := SetupLogger(cfg)

	return dispatch(cmd, cmdArgs, cfg, logger)
}

func printUsage(flags *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: snowdeck [-config file] <command> [flags...]\n\n")
	fmt.Fprintf(os.Stderr, "commands:\n")
	fmt.Fprintf(os.Stderr, "  deploy    deploy one, all or changed applications\n")
	fmt.Fprintf(os.Stderr, "  apps      list applications discovered in the repo\n")
	fmt.Fprintf(os.Stderr, "  deployed  list applications live in the warehouse\n")
	fmt.Fprintf(os.Stderr, "  delete    remove one deployed application\n")
	fmt.Fprintf(os.Stderr, "  sync      refresh the warehouse git mirror\n")
	fmt.Fprintf(os.Stderr, "  validate  check every manifest without deploying\n")
	fmt.Fprintf(os.Stderr, "  history   show journaled runs\n")
	fmt.Fprintf(os.Stderr, "  serve     run the HTTP status API\n")
	fmt.Fprintf(os.Stderr, "  version   show version\n\n")
	fmt.Fprintf(os.Stderr, "global flags:\n")
	flags.PrintDefaults()
}

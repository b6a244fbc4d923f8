// Package commands implements the bridgectl CLI commands.
package commands

import (
	"flag"
	"fmt"
	"os"
)

// client is the admin API client, initialized once the --addr flag for the
// invoked subcommand has been parsed.
var client *apiClient

// command is one bridgectl subcommand: a name, a one-line description for
// help output, and the function that parses its own flags from args and runs.
type command struct {
	name  string
	short string
	run   func(args []string) error
}

// commands is the dispatch table, in the order they should appear in help
// output. It is filled in init because runShell re-enters dispatch, which
// reads this table.
var commands []command

func init() {
	commands = []command{
		{"peers", "Inspect bridge peer sessions", runPeers},
		{"routes", "Show subject/pattern route occupancy", runRoutes},
		{"monitor", "Watch peer sessions for changes", runMonitor},
		{"version", "Print bridgectl build information", runVersion},
		{"shell", "Start an interactive bridgectl shell", runShell},
	}
}

// Execute dispatches os.Args[1] to the matching subcommand and exits with
// code 1 on error or unknown command, the same top-level shape as the
// teacher's debug tools that switch on a positional argument rather than
// pulling in a subcommand framework.
func Execute() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := dispatch(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// dispatch runs the subcommand named by args[0], re-entered by the
// interactive shell with a freshly tokenized line each time.
func dispatch(args []string) error {
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return nil
	}

	for _, c := range commands {
		if c.name == name {
			return c.run(args[1:])
		}
	}

	printUsage()
	return fmt.Errorf("unknown command %q", name)
}

func printUsage() {
	fmt.Println("bridgectl queries the bridged daemon's admin API to inspect peer sessions and route occupancy.")
	fmt.Println()
	fmt.Println("Usage: bridgectl <command> [flags] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-10s %s\n", c.name, c.short)
	}
	fmt.Println()
	fmt.Println("peers, routes and monitor accept -addr (default localhost:8421) and -format (table, json).")
}

// newCommonFlags builds the -addr/-format flag set shared by every
// subcommand that talks to the admin API; callers parse it and then call
// dialClient to initialize client.
func newCommonFlags(fsName string) (fs *flag.FlagSet, addr, format *string) {
	fs = flag.NewFlagSet(fsName, flag.ContinueOnError)
	addr = fs.String("addr", "localhost:8421", "bridged admin API address (host:port)")
	format = fs.String("format", "table", "output format: table, json")
	return fs, addr, format
}

func dialClient(addr string) {
	client = newAPIClient(addr)
}

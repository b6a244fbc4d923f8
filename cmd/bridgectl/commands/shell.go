package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"peers list", "List all live peer sessions"},
	{"peers show <id>", "Show details of one peer session"},
	{"routes", "Show subject/pattern route occupancy"},
	{"monitor [-interval 1s]", "Watch peer sessions for changes"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

// runShell starts an interactive REPL that re-enters dispatch for each
// typed line, the same loop shape whether a command arrives via os.Args or
// from the shell prompt.
func runShell(_ []string) error {
	printShellBanner()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("bridgectl> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "exit" || line == "quit":
			return nil
		case line == "help" || line == "?":
			printShellHelp()
		case line != "":
			if err := dispatch(strings.Fields(line)); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}

		fmt.Print("bridgectl> ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	return nil
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("bridgectl interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-30s %s\n", cmd.name, cmd.desc)
	}

	fmt.Println()
}

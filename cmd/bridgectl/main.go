// Bridgectl is the CLI client for the bridged daemon's admin API.
package main

import "github.com/pubsub-bridge/bridged/cmd/bridgectl/commands"

func main() {
	commands.Execute()
}

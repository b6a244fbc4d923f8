package commands

import (
	"fmt"

	appversion "github.com/pubsub-bridge/bridged/internal/version"
)

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build timestamp, set at build time via ldflags.
var BuildDate = "unknown"

func runVersion(_ []string) error {
	fmt.Printf("bridgectl %s\n", appversion.Version)
	fmt.Printf("  commit:  %s\n", GitCommit)
	fmt.Printf("  built:   %s\n", BuildDate)
	return nil
}

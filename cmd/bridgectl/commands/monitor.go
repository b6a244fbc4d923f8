package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"
)

// errMonitorInterval is returned when -interval is non-positive.
var errMonitorInterval = errors.New("-interval must be positive")

// runMonitor polls the admin API's peer list on an interval and prints a
// line for every peer added, removed, or state change it observes. The
// admin API is plain request/response JSON (see DESIGN.md for why the
// teacher's streaming RPC was dropped), so this is poll-based rather than
// a server push.
func runMonitor(args []string) error {
	fs, addr, _ := newCommonFlags("monitor")
	interval := fs.Duration("interval", time.Second, "poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dialClient(*addr)

	if *interval <= 0 {
		return errMonitorInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pollPeers(ctx, *interval)
}

func pollPeers(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[uint32]string)

	poll := func() error {
		peers, err := client.listPeers(ctx)
		if err != nil {
			return fmt.Errorf("list peers: %w", err)
		}

		current := make(map[uint32]string, len(peers))
		for _, p := range peers {
			current[p.ID] = p.State
			prevState, existed := seen[p.ID]
			switch {
			case !existed:
				fmt.Printf("[%s] peer-added id=%d stamp=%#016x state=%s\n",
					time.Now().Format(time.RFC3339), p.ID, p.Stamp, p.State)
			case prevState != p.State:
				fmt.Printf("[%s] peer-state-change id=%d stamp=%#016x %s -> %s\n",
					time.Now().Format(time.RFC3339), p.ID, p.Stamp, prevState, p.State)
			}
		}

		for id := range seen {
			if _, ok := current[id]; !ok {
				fmt.Printf("[%s] peer-removed id=%d\n", time.Now().Format(time.RFC3339), id)
			}
		}

		seen = current
		return nil
	}

	if err := poll(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := poll(); err != nil {
				return err
			}
		}
	}
}

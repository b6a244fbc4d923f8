package commands

import (
	"context"
	"fmt"
	"strconv"
)

// runPeers handles `bridgectl peers [list|show <id>]`, defaulting to list
// when no subcommand is given.
func runPeers(args []string) error {
	sub := "list"
	rest := args
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub = args[0]
		rest = args[1:]
	}

	switch sub {
	case "list":
		return runPeersList(rest)
	case "show":
		return runPeersShow(rest)
	default:
		return fmt.Errorf("unknown peers subcommand %q (want list or show)", sub)
	}
}

func runPeersList(args []string) error {
	fs, addr, format := newCommonFlags("peers list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dialClient(*addr)

	peers, err := client.listPeers(context.Background())
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	out, err := formatPeers(peers, *format)
	if err != nil {
		return fmt.Errorf("format peers: %w", err)
	}

	fmt.Print(out)
	return nil
}

func runPeersShow(args []string) error {
	fs, addr, format := newCommonFlags("peers show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dialClient(*addr)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bridgectl peers show <id>")
	}

	id, err := strconv.ParseUint(fs.Arg(0), 10, 32)
	if err != nil {
		return fmt.Errorf("parse peer id %q: %w", fs.Arg(0), err)
	}

	peer, err := client.getPeer(context.Background(), uint32(id))
	if err != nil {
		return fmt.Errorf("get peer: %w", err)
	}

	out, err := formatPeer(peer, *format)
	if err != nil {
		return fmt.Errorf("format peer: %w", err)
	}

	fmt.Print(out)
	return nil
}

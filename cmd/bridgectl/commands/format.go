package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatPeers renders a slice of peer snapshots in the requested format.
func formatPeers(peers []peerSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(peers)
	case formatTable:
		return formatPeersTable(peers), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatPeer renders a single peer snapshot in the requested format.
func formatPeer(peer *peerSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(peer)
	case formatTable:
		return formatPeerDetail(peer), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatRoutes renders a route occupancy snapshot in the requested format.
func formatRoutes(routes *routesSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(routes)
	case formatTable:
		return formatRoutesTable(routes), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

func formatPeersTable(peers []peerSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAMP\tSTATE\tSUBS\tPSUBS\tFRAGS\tNEXT-PING\tLAST-ACTIVE")

	for _, p := range peers {
		fmt.Fprintf(w, "%d\t%#016x\t%s\t%d\t%d\t%d\t%v\t%s\n",
			p.ID, p.Stamp, p.State, p.SubCount, p.PsubCount,
			p.FragmentsInFlight, p.IsNextPing, p.LastActive,
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatPeerDetail(p *peerSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%d\n", p.ID)
	fmt.Fprintf(w, "Stamp:\t%#016x\n", p.Stamp)
	fmt.Fprintf(w, "State:\t%s\n", p.State)
	fmt.Fprintf(w, "Last Active:\t%s\n", p.LastActive)
	fmt.Fprintf(w, "Last Seqno:\t%d\n", p.LastSeqno)
	fmt.Fprintf(w, "Subject Subs:\t%d\n", p.SubCount)
	fmt.Fprintf(w, "Pattern Subs:\t%d\n", p.PsubCount)
	fmt.Fprintf(w, "Fragments In Flight:\t%d\n", p.FragmentsInFlight)
	fmt.Fprintf(w, "Next Ping Target:\t%v\n", p.IsNextPing)

	_ = w.Flush()
	return buf.String()
}

func formatRoutesTable(r *routesSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Subject Routes:\t%d\n", r.SubjectRoutes)
	fmt.Fprintf(w, "Pattern Routes:\t%d\n", r.PatternRoutes)
	_ = w.Flush()
	return buf.String()
}

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// errUnexpectedStatus wraps a non-2xx admin API response.
var errUnexpectedStatus = errors.New("unexpected status from admin API")

// peerSnapshot mirrors adminapi.PeerSnapshot without importing the daemon's
// internal package: bridgectl talks to bridged only over the wire.
type peerSnapshot struct {
	ID                uint32 `json:"id"`
	Stamp             uint64 `json:"stamp"`
	LastActive        string `json:"last_active"`
	LastSeqno         uint64 `json:"last_seqno"`
	SubCount          uint32 `json:"sub_count"`
	PsubCount         uint32 `json:"psub_count"`
	State             string `json:"state"`
	FragmentsInFlight int    `json:"fragments_in_flight"`
	IsNextPing        bool   `json:"is_next_ping"`
}

// routesSnapshot mirrors adminapi.RoutesSnapshot.
type routesSnapshot struct {
	SubjectRoutes int `json:"subject_routes"`
	PatternRoutes int `json:"pattern_routes"`
}

// apiClient is a thin JSON client over the bridged admin API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + addr,
		http:    http.DefaultClient,
	}
}

func (c *apiClient) listPeers(ctx context.Context) ([]peerSnapshot, error) {
	var peers []peerSnapshot
	if err := c.getJSON(ctx, "/v1/peers", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *apiClient) getPeer(ctx context.Context, id uint32) (*peerSnapshot, error) {
	var peer peerSnapshot
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/peers/%d", id), &peer); err != nil {
		return nil, err
	}
	return &peer, nil
}

func (c *apiClient) getRoutes(ctx context.Context) (*routesSnapshot, error) {
	var routes routesSnapshot
	if err := c.getJSON(ctx, "/v1/routes", &routes); err != nil {
		return nil, err
	}
	return &routes, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s: %w: %s", path, errUnexpectedStatus, apiErr.Error)
		}
		return fmt.Errorf("%s: %w: %d", path, errUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

package adminapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pubsub-bridge/bridged/internal/adminapi"
	"github.com/pubsub-bridge/bridged/internal/bridge"
)

// fakeFabric never offers a connection; it exists only so a *bridge.Bridge
// can be constructed.
type fakeFabric struct{}

func (fakeFabric) Offer(uint64, []byte) bridge.OfferResult { return bridge.OfferNotConnected }
func (fakeFabric) Poll(int) [][]byte                       { return nil }

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	br := bridge.New(fakeFabric{}, nil, 0xFEED, 1, logger)

	path, handler := adminapi.New(br, logger)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // test-only, URL is the httptest server's own address
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := setupTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestListPeersEmpty(t *testing.T) {
	t.Parallel()

	srv := setupTestServer(t)

	var peers []adminapi.PeerSnapshot
	resp := getJSON(t, srv.URL+"/v1/peers", &peers)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(peers) != 0 {
		t.Errorf("peers = %v, want empty", peers)
	}
}

func TestGetPeerNotFound(t *testing.T) {
	t.Parallel()

	srv := setupTestServer(t)

	resp := getJSON(t, srv.URL+"/v1/peers/99", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetPeerBadID(t *testing.T) {
	t.Parallel()

	srv := setupTestServer(t)

	resp := getJSON(t, srv.URL+"/v1/peers/not-a-number", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRoutesSnapshot(t *testing.T) {
	t.Parallel()

	srv := setupTestServer(t)

	var routes adminapi.RoutesSnapshot
	resp := getJSON(t, srv.URL+"/v1/routes", &routes)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if routes.SubjectRoutes != 0 || routes.PatternRoutes != 0 {
		t.Errorf("routes = %+v, want zero counts", routes)
	}
}

func TestListPeersAfterSessionCreated(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()
	br := bridge.New(fakeFabric{}, nil, 0xFEED, 1, logger)

	// Drive an inbound HELLO through the dispatcher to create a session the
	// same way the bridge's own poll loop would.
	f := bridge.Frame{MsgType: bridge.MsgHello, Stamp: 0x1234, Seqno: 1}
	buf := make([]byte, bridge.HeaderSize)
	n, err := bridge.Marshal(&f, buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := br.Dispatcher.Dispatch(buf[:n], time.Now()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	path, handler := adminapi.New(br, logger)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var peers []adminapi.PeerSnapshot
	resp := getJSON(t, srv.URL+"/v1/peers", &peers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(peers) != 1 || peers[0].Stamp != 0x1234 {
		t.Fatalf("peers = %+v, want one session with stamp 0x1234", peers)
	}
}

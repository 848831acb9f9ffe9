//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/negotiation-hub/negotiation-hub/internal/api/http"
	"github.com/negotiation-hub/negotiation-hub/internal/application/auth"
	"github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/keystore"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/postgres"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/sse"
)

const jwtSecret = "integration-secret"

type party struct {
	id    string
	token string
}

func TestNegotiationLifecycleIntegration(t *testing.T) {
	server, authSvc, cleanup := newTestServer(t)
	defer cleanup()

	buyer := newParty(t, authSvc, "buyer-1")
	seller := newParty(t, authSvc, "seller-1")

	var created map[string]interface{}
	status := call(t, server.URL, buyer, http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "sku-42",
		"seller_id":  seller.id,
		"price":      "500.00",
		"quantity":   10,
		"message":    "opening offer",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status %d: %v", status, created)
	}
	id := created["id"].(string)

	var dup map[string]interface{}
	if status := call(t, server.URL, buyer, http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "sku-42", "seller_id": seller.id, "price": 1, "quantity": 1,
	}, &dup); status != http.StatusConflict {
		t.Fatalf("duplicate create status %d: %v", status, dup)
	}

	var locked map[string]interface{}
	if status := call(t, server.URL, seller, http.MethodPost, "/v1/negotiations/"+id+"/lock", nil, &locked); status != http.StatusOK {
		t.Fatalf("lock status %d: %v", status, locked)
	}
	if locked["is_locked"] != true {
		t.Fatalf("expected locked view, got %v", locked)
	}

	var blocked map[string]interface{}
	if status := call(t, server.URL, buyer, http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": "450"}, &blocked); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", status, blocked)
	}
	if blocked["error"] != "LOCK_HELD_BY_OTHER" {
		t.Fatalf("unexpected error %v", blocked["error"])
	}

	var countered map[string]interface{}
	if status := call(t, server.URL, seller, http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": "480.50"}, &countered); status != http.StatusOK {
		t.Fatalf("counter status %d: %v", status, countered)
	}
	if countered["status"] != "COUNTER_OFFER" || countered["is_locked"] != false {
		t.Fatalf("unexpected counter result %v", countered)
	}

	var accepted map[string]interface{}
	if status := call(t, server.URL, buyer, http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"status": "ACCEPTED"}, &accepted); status != http.StatusOK {
		t.Fatalf("accept status %d: %v", status, accepted)
	}
	if accepted["proposed_price"] != "480.5" {
		t.Fatalf("accepted price %v", accepted["proposed_price"])
	}

	var ordered map[string]interface{}
	if status := call(t, server.URL, buyer, http.MethodPost, "/v1/negotiations/"+id+"/order", nil, &ordered); status != http.StatusOK {
		t.Fatalf("order status %d: %v", status, ordered)
	}

	var history struct {
		History []map[string]interface{} `json:"history"`
	}
	if status := call(t, server.URL, seller, http.MethodGet, "/v1/negotiations/"+id+"/history", nil, &history); status != http.StatusOK {
		t.Fatalf("history status %d", status)
	}
	wantActions := []string{"CREATE", "COUNTER", "ACCEPT", "ORDER"}
	if len(history.History) != len(wantActions) {
		t.Fatalf("expected %d history entries, got %d", len(wantActions), len(history.History))
	}
	for i, want := range wantActions {
		if history.History[i]["action"] != want {
			t.Fatalf("entry %d: expected %s, got %v", i, want, history.History[i]["action"])
		}
	}
}

func TestConcurrentCountersIntegration(t *testing.T) {
	server, authSvc, cleanup := newTestServer(t)
	defer cleanup()

	buyer := newParty(t, authSvc, "buyer-2")
	seller := newParty(t, authSvc, "seller-2")

	var created map[string]interface{}
	if status := call(t, server.URL, buyer, http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "sku-7", "seller_id": seller.id, "price": "10", "quantity": 1,
	}, &created); status != http.StatusCreated {
		t.Fatalf("create status %d: %v", status, created)
	}
	id := created["id"].(string)

	const racers = 6
	var wg sync.WaitGroup
	statuses := make(chan int, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			statuses <- call(t, server.URL, seller, http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"quantity": i + 2}, nil)
		}(i)
	}
	close(start)
	wg.Wait()
	close(statuses)

	ok := 0
	for s := range statuses {
		switch s {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", s)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one winning counter, got %d", ok)
	}
}

func newParty(t *testing.T, authSvc *auth.Service, id string) party {
	t.Helper()
	token, err := authSvc.IssueToken(id, auth.RoleParty, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return party{id: id, token: token}
}

func call(t *testing.T, baseURL string, p party, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Errorf("marshal request: %v", err)
			return 0
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Errorf("new request: %v", err)
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Errorf("%s %s: %v", method, path, err)
		return 0
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Errorf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func newTestServer(t *testing.T) (*httptest.Server, *auth.Service, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, 5)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}

	root := repoRoot(t)
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(root, "internal", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	hub := sse.NewHub()
	svc := negotiation.NewService(postgres.NewNegotiationRepository(pool), negotiation.Options{
		LockTTLSeconds: 300,
		Publisher:      sse.NewNegotiationPublisher(hub, nil, logger),
	}, logger)
	authSvc := auth.NewService(keystore.NewSingle(jwtSecret), logger)
	server := httptest.NewServer(httpapi.NewServer(svc, authSvc, hub, httpapi.Options{}, logger).Router())

	cleanup := func() {
		server.Close()
		hub.Stop()
		pool.Close()
	}
	return server, authSvc, cleanup
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE negotiation_offer_history, negotiations RESTART IDENTITY CASCADE`)
	return err
}

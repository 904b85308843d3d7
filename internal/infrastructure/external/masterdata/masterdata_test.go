package masterdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var technicianCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/customers/C-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(port.Customer{ID: "C-1", Name: "Asha", GSTIN: "29ABCDE1234F1Z5"})
	})
	mux.HandleFunc("/technicians/T-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&technicianCalls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(port.Technician{ID: "T-1", Name: "Ravi", Active: true})
	})
	mux.HandleFunc("/products/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed id", http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &technicianCalls
}

func TestHTTPClient_GetCustomer(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewHTTPClient(srv.URL+"/", time.Second, zap.NewNop())

	c, err := client.GetCustomer(context.Background(), "C-1")

	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.Equal(t, "29ABCDE1234F1Z5", c.GSTIN)
}

func TestHTTPClient_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())

	_, err := client.GetProduct(context.Background(), "RO-404")
	assert.ErrorIs(t, err, port.ErrMasterDataNotFound)

	_, err = client.GetCustomer(context.Background(), "")
	assert.ErrorIs(t, err, port.ErrMasterDataNotFound)
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	srv, calls := newTestServer(t)
	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())

	tech, err := client.GetTechnician(context.Background(), "T-1")

	require.NoError(t, err)
	assert.True(t, tech.Active)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())

	_, err := client.GetProduct(context.Background(), "bad")

	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrMasterDataNotFound)
	assert.Contains(t, err.Error(), "malformed id")
}

func TestStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "masterdata.json")
	seed := Seed{
		Customers:   []port.Customer{{ID: "C-1", Name: "Asha"}},
		Products:    []port.Product{{ID: "RO-100", Name: "RO purifier", HSNCode: "842121"}},
		Technicians: []port.Technician{{ID: "T-1", Name: "Ravi", Active: true}},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.GetProduct(ctx, "RO-100")
	require.NoError(t, err)
	assert.Equal(t, "842121", p.HSNCode)

	tech, err := s.GetTechnician(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", tech.Name)

	_, err = s.GetCustomer(ctx, "C-2")
	assert.ErrorIs(t, err, port.ErrMasterDataNotFound)

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/consultapj/consultapj/internal/config"
	providerdomain "github.com/consultapj/consultapj/internal/provider/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSubject = "11222333000181"

func newTestAdapter(t *testing.T, upstream http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	return New(Params{
		Log: zap.NewNop(),
		Cfg: config.Config{
			RegistryBaseURL:   server.URL,
			RegistryAPIKey:    "test-key",
			ProviderTimeout:   5 * time.Second,
			ProviderCacheTTL:  48 * time.Hour,
			ProviderRetryBase: time.Millisecond,
		},
	})
}

func TestFetchSuccessCachesGroups(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/companies/"+testSubject, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receita_federal": map[string]string{"situacao": "ATIVA"},
			"geocodificacao":  map[string]float64{"lat": -23.55},
		})
	})

	groups := []providerdomain.FieldGroup{
		providerdomain.FieldReceitaFederal,
		providerdomain.FieldGeocodificacao,
	}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	require.Len(t, result, 2)
	for _, group := range groups {
		assert.Nil(t, result[group].Err)
		assert.False(t, result[group].CacheHit)
		assert.NotEmpty(t, result[group].Data)
	}

	// Second fetch is served entirely from cache.
	result = adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})
	for _, group := range groups {
		assert.True(t, result[group].CacheHit)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchForceFreshBypassesCache(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receita_federal": map[string]string{"situacao": "ATIVA"},
		})
	})

	groups := []providerdomain.FieldGroup{providerdomain.FieldReceitaFederal}
	adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{ForceFresh: true})

	assert.False(t, result[providerdomain.FieldReceitaFederal].CacheHit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchSubjectNotFound(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	groups := []providerdomain.FieldGroup{providerdomain.FieldReceitaFederal}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	require.NotNil(t, result[providerdomain.FieldReceitaFederal].Err)
	assert.Equal(t, providerdomain.FailureNotFound, result[providerdomain.FieldReceitaFederal].Err.Code)
}

func TestFetchGroupAbsentFromPayload(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receita_federal": map[string]string{"situacao": "ATIVA"},
		})
	})

	groups := []providerdomain.FieldGroup{
		providerdomain.FieldReceitaFederal,
		providerdomain.FieldSuframa,
	}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	assert.Nil(t, result[providerdomain.FieldReceitaFederal].Err)
	require.NotNil(t, result[providerdomain.FieldSuframa].Err)
	assert.Equal(t, providerdomain.FailureNotFound, result[providerdomain.FieldSuframa].Err.Code)
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receita_federal": map[string]string{"situacao": "ATIVA"},
		})
	})

	groups := []providerdomain.FieldGroup{providerdomain.FieldReceitaFederal}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	assert.Nil(t, result[providerdomain.FieldReceitaFederal].Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchRateLimitExhaustsAttempts(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	groups := []providerdomain.FieldGroup{providerdomain.FieldReceitaFederal}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	require.NotNil(t, result[providerdomain.FieldReceitaFederal].Err)
	assert.Equal(t, providerdomain.FailureRateLimited, result[providerdomain.FieldReceitaFederal].Err.Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDegradesOfflineGroupOnce(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string][]string{
				"offline": {"geocodificacao"},
			})
			return
		}
		assert.Equal(t, "receita_federal", r.URL.Query().Get("groups"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"receita_federal": map[string]string{"situacao": "ATIVA"},
		})
	})

	groups := []providerdomain.FieldGroup{
		providerdomain.FieldReceitaFederal,
		providerdomain.FieldGeocodificacao,
	}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	assert.Nil(t, result[providerdomain.FieldReceitaFederal].Err)
	require.NotNil(t, result[providerdomain.FieldGeocodificacao].Err)
	assert.Equal(t, providerdomain.FailureServiceOffline, result[providerdomain.FieldGeocodificacao].Err.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchAllGroupsOfflineTerminates(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string][]string{
			"offline": {"receita_federal", "geocodificacao"},
		})
	})

	groups := []providerdomain.FieldGroup{
		providerdomain.FieldReceitaFederal,
		providerdomain.FieldGeocodificacao,
	}
	result := adapter.Fetch(context.Background(), testSubject, groups, providerdomain.Strategy{})

	for _, group := range groups {
		require.NotNil(t, result[group].Err)
		assert.Equal(t, providerdomain.FailureServiceOffline, result[group].Err.Code)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

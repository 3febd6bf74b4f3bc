package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopleflow/internal/authz"
	"peopleflow/internal/credit/service"
	"peopleflow/internal/credit/store/memory"
	id "peopleflow/pkg/domain"
	"peopleflow/pkg/requestcontext"
)

type env struct {
	router http.Handler
	tenant id.TenantID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(memory.NewInMemory(), authz.NewEngine(), service.WithLogger(logger))

	e := &env{tenant: id.NewTenantID()}
	user := id.NewUserID()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithCaller(req.Context(), requestcontext.CallerInfo{
				UserID:   user.String(),
				TenantID: e.tenant.String(),
				Role:     string(authz.RoleTenantSuperuser),
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(svc, logger).Register(r)
	e.router = r
	return e
}

func (e *env) post(t *testing.T, target string, qty int) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(map[string]int{"quantity": qty})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) balance(t *testing.T) map[string]float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]float64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestPurchaseEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.post(t, "/credits/purchase", 50)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Transaction struct {
			Kind           string `json:"kind"`
			UnitPriceCents int64  `json:"unit_price_cents"`
		} `json:"transaction"`
		Balance struct {
			Available int `json:"available"`
		} `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "purchase", resp.Transaction.Kind)
	assert.Equal(t, int64(1000), resp.Transaction.UnitPriceCents)
	assert.Equal(t, 50, resp.Balance.Available)
}

func TestPurchaseEndpoint_InvalidQuantity(t *testing.T) {
	e := newEnv(t)
	rec := e.post(t, "/credits/purchase", 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceEndpoint_EmptyTenant(t *testing.T) {
	e := newEnv(t)
	b := e.balance(t)
	assert.Zero(t, b["purchased"])
	assert.Zero(t, b["available"])
}

func TestReserveAndReleaseEndpoints(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.post(t, "/credits/purchase", 10).Code)

	rec := e.post(t, "/credits/reserve", 4)
	require.Equal(t, http.StatusOK, rec.Code)
	b := e.balance(t)
	assert.Equal(t, float64(4), b["reserved"])
	assert.Equal(t, float64(6), b["available"])

	// Over-reserving is an actionable precondition failure.
	assert.Equal(t, http.StatusPaymentRequired, e.post(t, "/credits/reserve", 7).Code)

	// Releasing more than reserved conflicts.
	assert.Equal(t, http.StatusConflict, e.post(t, "/credits/release", 5).Code)

	require.Equal(t, http.StatusOK, e.post(t, "/credits/release", 4).Code)
	b = e.balance(t)
	assert.Equal(t, float64(0), b["reserved"])
	assert.Equal(t, float64(10), b["available"])
}

func TestTransactionsEndpoint(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.post(t, "/credits/purchase", 10).Code)
	require.Equal(t, http.StatusCreated, e.post(t, "/credits/purchase", 5).Code)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credits/transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []struct {
			Kind   string `json:"kind"`
			Amount int    `json:"amount"`
		} `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Transactions, 2)
}

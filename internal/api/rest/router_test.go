package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/api/rest"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/services/dividend"
	"rwaledger/internal/services/investment"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/internal/services/portfolio"
	"rwaledger/internal/services/transfer"
	"rwaledger/internal/testsupport/ledgertest"
	"rwaledger/pkg/auth"
)

type stubJournal struct{ events []ledger.Event }

func (s stubJournal) ListEvents(_ context.Context, poolID uuid.UUID, limit int) ([]ledger.Event, error) {
	return s.events, nil
}

type apiFixture struct {
	env    *ledgertest.Env
	server *httptest.Server
}

func newAPI(t *testing.T, journal rest.JournalReader, opts ...rest.Option) *apiFixture {
	t.Helper()
	env := ledgertest.New(t)
	svc := rest.Services{
		Pools: poolsvc.NewService(env.Ledger, env.Adapter, env.Auth, env.Locker, env.Cache, env.Events, poolsvc.Config{
			SettlementTimeout: time.Second,
		}, env.Log),
		Investments: investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log),
		Transfers:   transfer.NewService(env.Ledger, env.Dispatcher, env.Auth, env.Cache, env.Events, env.Log),
		Dividends: dividend.NewService(env.Ledger, env.Dispatcher, env.Auth, env.Locker, env.Cache, env.Events, dividend.Config{
			CurrencyScale: 2,
		}, env.Log),
		Portfolio:   portfolio.NewService(env.Tx, env.Log),
		Settlements: env.Dispatcher,
		Auth:        env.Auth,
		Journal:     journal,
	}
	srv := httptest.NewServer(rest.NewHandler(svc, env.Log, opts...).Routes())
	t.Cleanup(srv.Close)
	return &apiFixture{env: env, server: srv}
}

func (f *apiFixture) do(t *testing.T, method, path, actor string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set(rest.ActorHeader, actor)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestAPI_PoolLifecycleAndInvestment(t *testing.T) {
	f := newAPI(t, nil)

	code, body := f.do(t, http.MethodPost, "/pools", ledgertest.Admin, map[string]interface{}{
		"name":               "Dockside Lofts",
		"symbol":             "dsl",
		"token_supply":       "1000",
		"token_price":        "10",
		"minimum_investment": "50",
		"assets":             []map[string]interface{}{{"name": "Block A", "valuation": "10000"}},
	})
	require.Equal(t, http.StatusCreated, code, body)
	poolID := body["id"].(string)
	assert.Equal(t, "DSL", body["symbol"])
	assert.Equal(t, "draft", body["status"])

	assets := body["assets"].([]interface{})
	assetID := assets[0].(map[string]interface{})["id"].(string)

	code, body = f.do(t, http.MethodPost, "/pools/"+poolID+"/launch", ledgertest.Admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INVALID_STATE", errorCode(body))

	code, _ = f.do(t, http.MethodPost, "/pools/"+poolID+"/assets/"+assetID+"/validate", ledgertest.Admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = f.do(t, http.MethodPost, "/pools/"+poolID+"/launch", ledgertest.Admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "active", body["status"])

	code, body = f.do(t, http.MethodPost, "/pools/"+poolID+"/investments", "alice", map[string]string{"cash_amount": "100"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "10", body["tokens"])
	assert.Equal(t, "confirmed", body["settlement"].(map[string]interface{})["status"])

	code, body = f.do(t, http.MethodGet, "/holders/alice/portfolio", "", nil)
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(t, http.MethodGet, "/pools/"+poolID+"/stats", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "10", body["tokens_issued"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	f := newAPI(t, nil)
	p := f.env.SeedActivePool(t, decimal.NewFromInt(100), decimal.NewFromInt(10))
	base := "/pools/" + p.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   interface{}
		status int
		code   string
	}{
		{"missing actor", http.MethodPost, base + "/investments", "", map[string]string{"cash_amount": "100"}, http.StatusForbidden, "FORBIDDEN"},
		{"not elevated", http.MethodPost, base + "/suspend", "alice", nil, http.StatusForbidden, "FORBIDDEN"},
		{"bad uuid", http.MethodGet, "/pools/nope", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown pool", http.MethodGet, "/pools/" + uuid.NewString(), "", nil, http.StatusNotFound, "POOL_NOT_FOUND"},
		{"malformed body", http.MethodPost, base + "/investments", "alice", map[string]string{"cash": "1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"amount too small", http.MethodPost, base + "/investments", "alice", map[string]string{"cash_amount": "9"}, http.StatusBadRequest, "AMOUNT_TOO_SMALL"},
		{"same address", http.MethodPost, base + "/transfers", "alice", map[string]string{"to": "alice", "amount": "1"}, http.StatusBadRequest, "SAME_ADDRESS"},
		{"insufficient balance", http.MethodPost, base + "/transfers", "alice", map[string]string{"to": "bob", "amount": "1"}, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"supply exceeded", http.MethodPost, base + "/mints", ledgertest.Admin, map[string]string{"to": "bob", "amount": "101"}, http.StatusUnprocessableEntity, "SUPPLY_EXCEEDED"},
		{"unknown settlement status", http.MethodGet, "/settlements?status=lost", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"journal disabled", http.MethodGet, base + "/journal", "", nil, http.StatusNotImplemented, "JOURNAL_DISABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestAPI_SettlementFailureReturnsCommittedResult(t *testing.T) {
	f := newAPI(t, nil)
	p := f.env.SeedActivePool(t, decimal.NewFromInt(100), decimal.NewFromInt(10))

	f.env.Adapter.FailWith(func(string) error { return assert.AnError })
	code, body := f.do(t, http.MethodPost, "/pools/"+p.ID.String()+"/investments", "alice", map[string]string{"cash_amount": "100"})
	require.Equal(t, http.StatusCreated, code, body)
	leg := body["settlement"].(map[string]interface{})
	assert.Equal(t, "failed", leg["status"])

	code, _ = f.do(t, http.MethodPost, "/settlements/"+leg["settlement_id"].(string)+"/retry", "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	f.env.Adapter.FailWith(nil)
	code, body = f.do(t, http.MethodPost, "/settlements/"+leg["settlement_id"].(string)+"/retry", ledgertest.Admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "confirmed", body["status"])
}

func TestAPI_DistributionFlow(t *testing.T) {
	f := newAPI(t, nil)
	p := f.env.SeedActivePool(t, decimal.NewFromInt(100), decimal.NewFromInt(10))
	base := "/pools/" + p.ID.String()

	code, _ := f.do(t, http.MethodPost, base+"/investments", "alice", map[string]string{"cash_amount": "100"})
	require.Equal(t, http.StatusCreated, code)

	now := time.Now().UTC()
	code, body := f.do(t, http.MethodPost, base+"/distributions", ledgertest.Admin, map[string]interface{}{
		"total_amount":      "50",
		"record_date":       now.Add(time.Minute),
		"distribution_date": now.Add(time.Minute),
	})
	require.Equal(t, http.StatusCreated, code, body)
	distID := body["id"].(string)

	code, body = f.do(t, http.MethodPost, "/distributions/"+distID+"/claim", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INVALID_STATE", errorCode(body))

	code, body = f.do(t, http.MethodPost, "/distributions/"+distID+"/cancel", ledgertest.Admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["status"])
}

func TestAPI_Journal(t *testing.T) {
	p := uuid.New()
	f := newAPI(t, stubJournal{events: []ledger.Event{{Type: ledger.EventInvestmentRecorded, PoolID: p}}})

	resp, err := http.Get(f.server.URL + "/pools/" + p.String() + "/journal?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var events []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.Len(t, events, 1)
}

func TestAPI_BearerTokenAuth(t *testing.T) {
	tokens, err := auth.NewTokens("test-secret-key-min-32-characters-long", "rwaledger", time.Hour)
	require.NoError(t, err)
	f := newAPI(t, nil, rest.WithTokenAuth(tokens))
	p := f.env.SeedActivePool(t, decimal.NewFromInt(100), decimal.NewFromInt(10))
	path := f.server.URL + "/pools/" + p.ID.String() + "/investments"

	invest := func(header, value string) int {
		req, err := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(`{"cash_amount":"100"}`))
		require.NoError(t, err)
		req.Header.Set(header, value)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	// the gateway header is not trusted once token auth is on
	assert.Equal(t, http.StatusForbidden, invest(rest.ActorHeader, "alice"))
	assert.Equal(t, http.StatusForbidden, invest("Authorization", "Bearer not-a-token"))

	token, err := tokens.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, invest("Authorization", "Bearer "+token))
	assert.True(t, f.env.Holding(t, "alice", p.ID).TotalTokens.Equal(decimal.NewFromInt(10)))
}

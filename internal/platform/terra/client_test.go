package terra

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "localterra", 5*time.Second)
}

func TestQueryContract(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wasm/contracts/terra1pool/store", r.URL.Path)
		var q map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("query_msg")), &q))
		assert.Contains(t, q, "simulation")
		_, _ = w.Write([]byte(`{"height":"1","result":{"return_amount":"12345"}}`))
	})

	var out struct {
		ReturnAmount string `json:"return_amount"`
	}
	err := c.QueryContract(context.Background(), "terra1pool", map[string]any{"simulation": map[string]any{}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "12345", out.ReturnAmount)
}

func TestMarketSwap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/swap", r.URL.Path)
		assert.Equal(t, "1000000uluna", r.URL.Query().Get("offer_coin"))
		assert.Equal(t, "uusd", r.URL.Query().Get("ask_denom"))
		_, _ = w.Write([]byte(`{"height":"1","result":{"denom":"uusd","amount":"5012345.987"}}`))
	})

	amt, err := c.MarketSwap(context.Background(), domain.NewCoin("uluna", 1_000_000), "uusd")
	require.NoError(t, err)
	assert.Equal(t, "5012345.987", amt.String())
}

func TestTaxRateAndAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/treasury/tax_rate":
			_, _ = w.Write([]byte(`{"height":"1","result":"0.001350000000000000"}`))
		case "/auth/accounts/terra1me":
			_, _ = w.Write([]byte(`{"height":"1","result":{"type":"core/Account","value":{"address":"terra1me","account_number":"42","sequence":7}}}`))
		default:
			http.NotFound(w, r)
		}
	})

	rate, err := c.TaxRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.00135", rate.String())

	acc, err := c.Account(context.Background(), "terra1me")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acc.AccountNumber)
	assert.Equal(t, uint64(7), acc.Sequence)
}

func TestBalancesAndParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bank/balances/terra1me":
			_, _ = w.Write([]byte(`{"height":"1","result":[{"denom":"uluna","amount":"5"},{"denom":"uusd","amount":"250000000"}]}`))
		case "/market/parameters":
			_, _ = w.Write([]byte(`{"height":"1","result":{"base_pool":"250000000000.0","pool_recovery_period":"14400","min_spread":"0.02"}}`))
		case "/oracle/parameters":
			_, _ = w.Write([]byte(`{"height":"1","result":{"whitelist":[{"name":"ukrw","tobin_tax":"0.0035"}]}}`))
		}
	})

	coins, err := c.Balances(context.Background(), "terra1me")
	require.NoError(t, err)
	assert.Equal(t, "250000000", coins.AmountOf("uusd").Dec())
	assert.True(t, coins.AmountOf("ukrw").IsZero())

	mp, err := c.MarketParameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.02", mp.MinSpread.String())
	assert.Equal(t, uint64(14400), mp.PoolRecoveryPeriod)

	tax, err := c.TobinTax(context.Background(), "ukrw")
	require.NoError(t, err)
	assert.Equal(t, "0.0035", tax.String())
	tax, err = c.TobinTax(context.Background(), "uusd")
	require.NoError(t, err)
	assert.True(t, tax.IsZero())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		sentinel  error
	}{
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "throttled", status: http.StatusTooManyRequests, transient: true},
		{name: "chain rejection", status: http.StatusBadRequest, transient: true, sentinel: domain.ErrChainResponse},
		{name: "unauthorized", status: http.StatusUnauthorized, sentinel: domain.ErrUnauthorized},
		{name: "malformed body", status: http.StatusOK, body: `{"result":`, sentinel: domain.ErrMalformedResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.TaxRate(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.transient, domain.IsTransient(err))
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
		})
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "localterra", time.Second)
	_, err := c.TaxRate(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func testTx() domain.UnsignedTx {
	return domain.UnsignedTx{
		ChainID: "localterra",
		Account: domain.Account{Address: "terra1me", AccountNumber: 3, Sequence: 9},
		Msgs: []domain.Msg{
			domain.MsgExecuteContract{
				Sender:     "terra1me",
				Contract:   "terra1pool",
				ExecuteMsg: json.RawMessage(`{"swap":{}}`),
				Coins:      domain.Coins{domain.NewCoin("uusd", 100)},
			},
			domain.MsgSwap{Trader: "terra1me", OfferCoin: domain.NewCoin("uluna", 5), AskDenom: "uusd"},
		},
		Fee: domain.Fee{Gas: 200000, Amount: domain.Coins{domain.NewCoin("uusd", 30000)}},
	}
}

func TestSignBytes_SortedKeys(t *testing.T) {
	b, err := SignBytes(testTx())
	require.NoError(t, err)

	want := `{"account_number":"3","chain_id":"localterra","fee":{"amount":[{"amount":"30000","denom":"uusd"}],"gas":"200000"},"memo":"",` +
		`"msgs":[{"type":"wasm/MsgExecuteContract","value":{"coins":[{"amount":"100","denom":"uusd"}],"contract":"terra1pool","execute_msg":"` +
		base64.StdEncoding.EncodeToString([]byte(`{"swap":{}}`)) + `","sender":"terra1me"}},` +
		`{"type":"market/MsgSwap","value":{"ask_denom":"uusd","offer_coin":{"amount":"5","denom":"uluna"},"trader":"terra1me"}}],"sequence":"9"}`
	assert.Equal(t, want, string(b))
}

func TestEstimateGasAndBroadcast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/txs/estimate_fee":
			_, _ = w.Write([]byte(`{"height":"1","result":{"fee":{"amount":[],"gas":"181818"}}}`))
		case "/txs":
			assert.JSONEq(t, `"sync"`, string(body["mode"]))
			var tx stdTx
			require.NoError(t, json.Unmarshal(body["tx"], &tx))
			require.Len(t, tx.Signatures, 1)
			assert.Equal(t, pubKeyType, tx.Signatures[0].PubKey.Type)
			assert.Len(t, tx.Msg, 2)
			_, _ = w.Write([]byte(`{"height":"0","txhash":"ABC","code":0,"raw_log":"[]"}`))
		}
	})

	gas, err := c.EstimateGas(context.Background(), testTx())
	require.NoError(t, err)
	assert.Equal(t, uint64(181818), gas)

	res, err := c.Broadcast(context.Background(), domain.SignedTx{
		Tx:        testTx(),
		Signature: domain.Signature{PubKey: make([]byte, 33), Signature: make([]byte, 64)},
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC", res.TxHash)
	assert.Zero(t, res.Code)
}

func TestEncodeMsg_Unsupported(t *testing.T) {
	_, err := EncodeMsg(nil)
	assert.Error(t, err)
}

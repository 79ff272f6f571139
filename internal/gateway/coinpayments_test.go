package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/guildpay/guildpay/internal/models"
)

func coinTestOwner() *models.Owner {
	return &models.Owner{
		ID:             1,
		Username:       "owner",
		SettlementMode: models.SettlementCrypto,
		CoinPublicKey:  "pubkey",
		CoinSecretKey:  "secretkey",
	}
}

// coinServer fakes the CoinPayments API. It verifies the HMAC header
// against the raw body before answering.
func coinServer(t *testing.T, handle func(t *testing.T, form url.Values) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, errRead := io.ReadAll(r.Body)
		if errRead != nil {
			t.Errorf("read body: %v", errRead)
			return
		}
		if got, want := r.Header.Get("HMAC"), SignHMAC(string(body), "secretkey"); got != want {
			t.Errorf("hmac header: got %s want %s", got, want)
		}
		form, errParse := url.ParseQuery(string(body))
		if errParse != nil {
			t.Errorf("parse body: %v", errParse)
			return
		}
		if form.Get("version") != "1" || form.Get("format") != "json" || form.Get("key") != "pubkey" {
			t.Errorf("missing common fields in %v", form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, handle(t, form))
	}))
}

func TestCoinPaymentsInitiateCheckout(t *testing.T) {
	server := coinServer(t, func(t *testing.T, form url.Values) string {
		if form.Get("cmd") != "create_transaction" {
			t.Errorf("cmd: got %s", form.Get("cmd"))
		}
		if form.Get("currency1") != "USD" || form.Get("currency2") != "LTC" {
			t.Errorf("currency pair: %v", form)
		}
		if form.Get("amount") != "10.00" {
			t.Errorf("amount: got %s", form.Get("amount"))
		}
		return `{"error":"ok","result":{
			"txn_id":"CPtxn1","address":"LAddr1","amount":"0.50000000",
			"checkout_url":"https://coin.example/co","status_url":"https://coin.example/st"}}`
	})
	defer server.Close()

	g := NewCoinPaymentsGateway(server.URL)
	plan := &models.Plan{Name: "Gold", Amount: decimal.RequireFromString("10.00")}
	subscriber := &models.Subscriber{Email: "buyer@example.com"}

	checkout, errCheckout := g.InitiateCheckout(context.Background(), coinTestOwner(), subscriber, plan)
	if errCheckout != nil {
		t.Fatalf("initiate checkout: %v", errCheckout)
	}
	if checkout.ExternalID != "CPtxn1" || checkout.Address != "LAddr1" {
		t.Fatalf("checkout ids: %+v", checkout)
	}
	if checkout.RedirectURL != "https://coin.example/co" || checkout.StatusURL != "https://coin.example/st" {
		t.Fatalf("checkout urls: %+v", checkout)
	}
	if !checkout.LTCAmount.Valid || !checkout.LTCAmount.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("ltc amount: %+v", checkout.LTCAmount)
	}
}

func TestCoinPaymentsPollStatusMapping(t *testing.T) {
	cases := []struct {
		remote int
		want   Status
	}{
		{100, StatusSuccess},
		{150, StatusSuccess},
		{0, StatusPending},
		{2, StatusPending},
		{-1, StatusFailed},
	}
	for _, tc := range cases {
		status := tc.remote
		server := coinServer(t, func(t *testing.T, form url.Values) string {
			if form.Get("cmd") != "get_tx_info" || form.Get("txid") != "CPtxn1" {
				t.Errorf("unexpected form: %v", form)
			}
			return fmt.Sprintf(`{"error":"ok","result":{"status":%d,"status_text":"x"}}`, status)
		})

		g := NewCoinPaymentsGateway(server.URL)
		got, errPoll := g.PollStatus(context.Background(), coinTestOwner(), "CPtxn1")
		server.Close()
		if errPoll != nil {
			t.Fatalf("poll status %d: %v", tc.remote, errPoll)
		}
		if got != tc.want {
			t.Fatalf("status %d: got %s want %s", tc.remote, got, tc.want)
		}
	}
}

func TestCoinPaymentsWithdraw(t *testing.T) {
	server := coinServer(t, func(t *testing.T, form url.Values) string {
		if form.Get("cmd") != "create_withdrawal" {
			t.Errorf("cmd: got %s", form.Get("cmd"))
		}
		if form.Get("amount") != "0.15000000" || form.Get("currency") != "LTC" || form.Get("address") != "LPayout" {
			t.Errorf("withdrawal form: %v", form)
		}
		return `{"error":"ok","result":{"id":"w1","status":1}}`
	})
	defer server.Close()

	g := NewCoinPaymentsGateway(server.URL)
	if errWithdraw := g.Withdraw(context.Background(), coinTestOwner(), "LPayout", decimal.RequireFromString("0.15")); errWithdraw != nil {
		t.Fatalf("withdraw: %v", errWithdraw)
	}
}

func TestCoinPaymentsWithdrawRejected(t *testing.T) {
	server := coinServer(t, func(t *testing.T, form url.Values) string {
		return `{"error":"ok","result":{"id":"w1","status":0}}`
	})
	defer server.Close()

	g := NewCoinPaymentsGateway(server.URL)
	errWithdraw := g.Withdraw(context.Background(), coinTestOwner(), "LPayout", decimal.RequireFromString("0.15"))
	if !errors.Is(errWithdraw, ErrGatewayRejected) {
		t.Fatalf("got %v, want gateway rejected", errWithdraw)
	}
}

func TestCoinPaymentsErrorTaxonomy(t *testing.T) {
	t.Run("bad api key", func(t *testing.T) {
		server := coinServer(t, func(t *testing.T, form url.Values) string {
			return `{"error":"Invalid API public key"}`
		})
		defer server.Close()

		g := NewCoinPaymentsGateway(server.URL)
		_, errPoll := g.PollStatus(context.Background(), coinTestOwner(), "x")
		if !errors.Is(errPoll, ErrInvalidCredentials) {
			t.Fatalf("got %v, want invalid credentials", errPoll)
		}
	})

	t.Run("explicit rejection", func(t *testing.T) {
		server := coinServer(t, func(t *testing.T, form url.Values) string {
			return `{"error":"Transaction not found"}`
		})
		defer server.Close()

		g := NewCoinPaymentsGateway(server.URL)
		_, errPoll := g.PollStatus(context.Background(), coinTestOwner(), "x")
		if !errors.Is(errPoll, ErrGatewayRejected) {
			t.Fatalf("got %v, want gateway rejected", errPoll)
		}
	})

	t.Run("missing keys", func(t *testing.T) {
		g := NewCoinPaymentsGateway("http://unused.invalid")
		owner := coinTestOwner()
		owner.CoinSecretKey = ""
		_, errPoll := g.PollStatus(context.Background(), owner, "x")
		if !errors.Is(errPoll, ErrInvalidCredentials) {
			t.Fatalf("got %v, want invalid credentials", errPoll)
		}
	})

	t.Run("garbage response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>not json</html>")
		}))
		defer server.Close()

		g := NewCoinPaymentsGateway(server.URL)
		_, errPoll := g.PollStatus(context.Background(), coinTestOwner(), "x")
		if !errors.Is(errPoll, ErrDecode) {
			t.Fatalf("got %v, want decode error", errPoll)
		}
	})
}

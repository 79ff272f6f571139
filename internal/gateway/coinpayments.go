package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/models"
)

const (
	// DefaultCoinPaymentsEndpoint is the production API endpoint.
	DefaultCoinPaymentsEndpoint = "https://www.coinpayments.net/api.php"

	coinRequestTimeout = 30 * time.Second
	coinMaxRetries     = 2
	coinRetryBaseDelay = 500 * time.Millisecond
)

// CoinPayments transaction status thresholds. Statuses >= 100 are complete,
// 1..99 are in progress, negative values are failures.
const (
	coinStatusComplete = 100
)

// CoinPaymentsGateway is the crypto (LTC) processor back-end.
type CoinPaymentsGateway struct {
	endpoint string
	client   *http.Client
}

// NewCoinPaymentsGateway constructs a CoinPayments gateway against the given
// endpoint. An empty endpoint selects production.
func NewCoinPaymentsGateway(endpoint string) *CoinPaymentsGateway {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultCoinPaymentsEndpoint
	}
	return &CoinPaymentsGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: coinRequestTimeout},
	}
}

// coinEnvelope is the outer shape of every CoinPayments response.
type coinEnvelope struct {
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// coinTransaction is the create_transaction result payload.
type coinTransaction struct {
	TxnID          string `json:"txn_id"`
	Address        string `json:"address"`
	Amount         string `json:"amount"`
	CheckoutURL    string `json:"checkout_url"`
	StatusURL      string `json:"status_url"`
	ConfirmsNeeded string `json:"confirms_needed"`
}

// coinTxInfo is the get_tx_info result payload.
type coinTxInfo struct {
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
}

// InitiateCheckout creates a CoinPayments transaction converting the plan's
// USD price into LTC.
func (g *CoinPaymentsGateway) InitiateCheckout(ctx context.Context, owner *models.Owner, subscriber *models.Subscriber, plan *models.Plan) (*Checkout, error) {
	params := url.Values{}
	params.Set("amount", plan.Amount.StringFixed(2))
	params.Set("currency1", "USD")
	params.Set("currency2", "LTC")
	params.Set("buyer_email", subscriber.Email)
	params.Set("item_name", plan.Name)

	raw, errCall := g.call(ctx, owner, "create_transaction", params)
	if errCall != nil {
		return nil, errCall
	}

	var txn coinTransaction
	if errDecode := json.Unmarshal(raw, &txn); errDecode != nil {
		return nil, fmt.Errorf("%w: create_transaction result: %v", ErrDecode, errDecode)
	}
	if txn.TxnID == "" {
		return nil, fmt.Errorf("%w: create_transaction result missing txn_id", ErrDecode)
	}
	ltcAmount, errParse := decimal.NewFromString(txn.Amount)
	if errParse != nil {
		return nil, fmt.Errorf("%w: create_transaction amount %q: %v", ErrDecode, txn.Amount, errParse)
	}

	return &Checkout{
		ExternalID:  txn.TxnID,
		RedirectURL: txn.CheckoutURL,
		StatusURL:   txn.StatusURL,
		Address:     txn.Address,
		LTCAmount:   decimal.NewNullDecimal(ltcAmount),
	}, nil
}

// PollStatus reports the state of a CoinPayments transaction.
func (g *CoinPaymentsGateway) PollStatus(ctx context.Context, owner *models.Owner, externalID string) (Status, error) {
	params := url.Values{}
	params.Set("txid", externalID)

	raw, errCall := g.call(ctx, owner, "get_tx_info", params)
	if errCall != nil {
		return "", errCall
	}

	var info coinTxInfo
	if errDecode := json.Unmarshal(raw, &info); errDecode != nil {
		return "", fmt.Errorf("%w: get_tx_info result: %v", ErrDecode, errDecode)
	}

	switch {
	case info.Status >= coinStatusComplete:
		return StatusSuccess, nil
	case info.Status < 0:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

// Cancel is a local-only operation for crypto subscriptions: there is no
// remote recurring object to stop. The ledger row keeps its expiration date.
func (g *CoinPaymentsGateway) Cancel(ctx context.Context, owner *models.Owner, externalID string) error {
	return nil
}

// Withdraw pushes amountLTC on-chain to address from the owner's balance.
func (g *CoinPaymentsGateway) Withdraw(ctx context.Context, owner *models.Owner, address string, amountLTC decimal.Decimal) error {
	if !amountLTC.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrGatewayRejected)
	}
	params := url.Values{}
	params.Set("amount", amountLTC.StringFixed(8))
	params.Set("currency", "LTC")
	params.Set("address", address)
	params.Set("auto_confirm", "1")

	raw, errCall := g.call(ctx, owner, "create_withdrawal", params)
	if errCall != nil {
		return errCall
	}

	var result struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	}
	if errDecode := json.Unmarshal(raw, &result); errDecode != nil {
		return fmt.Errorf("%w: create_withdrawal result: %v", ErrDecode, errDecode)
	}
	if result.Status != 1 {
		return fmt.Errorf("%w: create_withdrawal status=%d", ErrGatewayRejected, result.Status)
	}
	return nil
}

// call signs and posts one API command, retrying transport failures with
// exponential backoff. Explicit rejections and decode failures fail fast.
func (g *CoinPaymentsGateway) call(ctx context.Context, owner *models.Owner, cmd string, params url.Values) (json.RawMessage, error) {
	if owner == nil || owner.CoinPublicKey == "" || owner.CoinSecretKey == "" {
		return nil, fmt.Errorf("%w: owner has no crypto API keys", ErrInvalidCredentials)
	}

	params.Set("version", "1")
	params.Set("cmd", cmd)
	params.Set("key", owner.CoinPublicKey)
	params.Set("format", "json")
	body := params.Encode()

	var lastErr error
	for attempt := 0; attempt <= coinMaxRetries; attempt++ {
		if attempt > 0 {
			delay := coinRetryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-time.After(delay):
			}
		}

		raw, errOnce := g.callOnce(ctx, owner, body)
		if errOnce == nil {
			return raw, nil
		}
		lastErr = errOnce
		if !errors.Is(errOnce, ErrTransport) {
			return nil, errOnce
		}
		log.WithFields(log.Fields{"cmd": cmd, "attempt": attempt + 1}).
			Warnf("coinpayments request failed: %v", errOnce)
	}
	return nil, lastErr
}

func (g *CoinPaymentsGateway) callOnce(ctx context.Context, owner *models.Owner, body string) (json.RawMessage, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, errReq)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HMAC", SignHMAC(body, owner.CoinSecretKey))

	resp, errDo := g.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrGatewayRejected, resp.StatusCode)
	}

	var envelope coinEnvelope
	if errDecode := json.Unmarshal(payload, &envelope); errDecode != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, errDecode)
	}
	if !strings.EqualFold(envelope.Error, "ok") {
		if strings.Contains(strings.ToLower(envelope.Error), "key") {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, envelope.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, envelope.Error)
	}
	if len(envelope.Result) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrDecode)
	}
	return envelope.Result, nil
}

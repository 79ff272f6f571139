package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/guildpay/guildpay/internal/models"
)

// Gateway error kinds surfaced to callers.
var (
	// ErrTransport indicates a network failure reaching the processor.
	// Callers may retry; the gateway already retried twice with backoff.
	ErrTransport = errors.New("gateway transport error")
	// ErrGatewayRejected indicates the processor returned an explicit error.
	ErrGatewayRejected = errors.New("gateway rejected request")
	// ErrDecode indicates a malformed processor response.
	ErrDecode = errors.New("gateway response decode error")
	// ErrInvalidCredentials indicates the owner's API keys were refused.
	ErrInvalidCredentials = errors.New("gateway credentials invalid")
)

// Status is a gateway-side transaction state.
type Status string

// Poll statuses.
const (
	// StatusPending means the transaction is still in progress.
	StatusPending Status = "pending"
	// StatusSuccess means the transaction completed and funds cleared.
	StatusSuccess Status = "success"
	// StatusFailed means the transaction failed or was reversed.
	StatusFailed Status = "failed"
)

// Checkout is the result of initiating a hosted checkout.
type Checkout struct {
	ExternalID  string              // Processor-side subscription or transaction ID.
	RedirectURL string              // Hosted checkout page the subscriber is sent to.
	StatusURL   string              // Processor status page, crypto only.
	Address     string              // Deposit address, crypto only.
	LTCAmount   decimal.NullDecimal // Quoted LTC amount, crypto only.
}

// PaymentGateway is the uniform capability set over both processors.
type PaymentGateway interface {
	// InitiateCheckout starts a hosted checkout for plan, charged to the
	// owner's processor account.
	InitiateCheckout(ctx context.Context, owner *models.Owner, subscriber *models.Subscriber, plan *models.Plan) (*Checkout, error)
	// PollStatus reports the current state of a previously initiated
	// transaction.
	PollStatus(ctx context.Context, owner *models.Owner, externalID string) (Status, error)
	// Cancel stops the remote subscription from renewing at period end.
	Cancel(ctx context.Context, owner *models.Owner, externalID string) error
	// Withdraw pushes amountLTC to an external address from the owner's
	// processor balance.
	Withdraw(ctx context.Context, owner *models.Owner, address string, amountLTC decimal.Decimal) error
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/guildpay/guildpay/internal/models"
)

// StripeGateway is the card processor back-end. Charges run on each owner's
// connected account; the platform key authenticates the API calls.
type StripeGateway struct {
	successURL string
	cancelURL  string
}

// NewStripeGateway configures the platform API key and the checkout result
// URLs. The success URL receives the session id and local plan id.
func NewStripeGateway(apiKey, successURL, cancelURL string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// PublishPlan provisions the remote product and recurring price for a
// card-mode plan and fills in the external IDs.
func (g *StripeGateway) PublishPlan(ctx context.Context, owner *models.Owner, plan *models.Plan) error {
	if owner == nil || owner.StripeAccountID == "" {
		return fmt.Errorf("%w: owner has no card account", ErrInvalidCredentials)
	}

	productParams := &stripe.ProductParams{
		Name: stripe.String(plan.Name),
	}
	productParams.Context = ctx
	productParams.SetStripeAccount(owner.StripeAccountID)
	remoteProduct, errProduct := product.New(productParams)
	if errProduct != nil {
		return translateStripeErr(errProduct)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(remoteProduct.ID),
		UnitAmount: stripe.Int64(usdCents(plan.Amount)),
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			IntervalCount: stripe.Int64(int64(plan.DurationMonths)),
		},
	}
	priceParams.Context = ctx
	priceParams.SetStripeAccount(owner.StripeAccountID)
	remotePrice, errPrice := price.New(priceParams)
	if errPrice != nil {
		return translateStripeErr(errPrice)
	}

	plan.StripeProductID = &remoteProduct.ID
	plan.StripePriceID = &remotePrice.ID
	return nil
}

// EnsureCustomer creates the card-processor customer for a subscriber when
// missing and returns its ID.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, owner *models.Owner, subscriber *models.Subscriber) (string, error) {
	if subscriber.StripeCustomerID != nil && *subscriber.StripeCustomerID != "" {
		return *subscriber.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{
		Email: stripe.String(subscriber.Email),
		Metadata: map[string]string{
			"discord_id": subscriber.DiscordID,
		},
	}
	params.Context = ctx
	params.SetStripeAccount(owner.StripeAccountID)
	remote, errNew := customer.New(params)
	if errNew != nil {
		return "", translateStripeErr(errNew)
	}
	subscriber.StripeCustomerID = &remote.ID
	return remote.ID, nil
}

// InitiateCheckout creates a hosted checkout session referencing the plan's
// remote price. The success path carries the session id and local plan id.
func (g *StripeGateway) InitiateCheckout(ctx context.Context, owner *models.Owner, subscriber *models.Subscriber, plan *models.Plan) (*Checkout, error) {
	if owner == nil || owner.StripeAccountID == "" {
		return nil, fmt.Errorf("%w: owner has no card account", ErrInvalidCredentials)
	}
	if plan.StripePriceID == nil || *plan.StripePriceID == "" {
		return nil, fmt.Errorf("%w: plan %d has no remote price", ErrGatewayRejected, plan.ID)
	}

	customerID, errCustomer := g.EnsureCustomer(ctx, owner, subscriber)
	if errCustomer != nil {
		return nil, errCustomer
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(*plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(g.successURL + "?session_id={CHECKOUT_SESSION_ID}&plan=" + strconv.FormatUint(plan.ID, 10)),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(plan.ID, 10)),
	}
	params.Context = ctx
	params.SetStripeAccount(owner.StripeAccountID)

	remote, errNew := session.New(params)
	if errNew != nil {
		return nil, translateStripeErr(errNew)
	}

	return &Checkout{
		ExternalID:  remote.ID,
		RedirectURL: remote.URL,
	}, nil
}

// PollStatus reports the remote subscription state. Card activations arrive
// through the webhook; this exists for operator-driven reconciliation.
func (g *StripeGateway) PollStatus(ctx context.Context, owner *models.Owner, externalID string) (Status, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.SetStripeAccount(owner.StripeAccountID)
	remote, errGet := subscription.Get(externalID, params)
	if errGet != nil {
		return "", translateStripeErr(errGet)
	}
	switch remote.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return StatusSuccess, nil
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusPastDue:
		return StatusPending, nil
	default:
		return StatusFailed, nil
	}
}

// Cancel marks the remote subscription to stop renewing at period end.
func (g *StripeGateway) Cancel(ctx context.Context, owner *models.Owner, externalID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	params.SetStripeAccount(owner.StripeAccountID)
	if _, errUpdate := subscription.Update(externalID, params); errUpdate != nil {
		return translateStripeErr(errUpdate)
	}
	return nil
}

// Withdraw is not a card-mode capability: card commissions settle
// off-platform and the engine only performs the bookkeeping.
func (g *StripeGateway) Withdraw(ctx context.Context, owner *models.Owner, address string, amountLTC decimal.Decimal) error {
	return fmt.Errorf("%w: card settlement is off-platform", ErrGatewayRejected)
}

// usdCents converts a USD decimal to the processor's integer cents.
func usdCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// translateStripeErr maps processor errors onto gateway kinds. Anything the
// processor never answered is a transport failure; explicit API errors fail
// fast.
func translateStripeErr(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, stripeErr.Msg)
		}
		return fmt.Errorf("%w: %s (code=%s)", ErrGatewayRejected, stripeErr.Msg, stripeErr.Code)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

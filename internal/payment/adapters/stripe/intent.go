package stripe

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// IntentClient creates payment intents. It is the only outbound call this
// service makes to Stripe.
type IntentClient struct {
	api *client.API
}

// NewIntentClient returns nil when no API key is configured.
func NewIntentClient(apiKey string) *IntentClient {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &IntentClient{api: sc}
}

func (c *IntentClient) CreateIntent(ctx context.Context, paymentID snowflake.ID, amount int64, currency string) (string, error) {
	if c == nil || c.api == nil {
		return "", domain.ErrIntentUnavailable
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("payment_" + paymentID.String())
	params.AddMetadata("payment_id", paymentID.String())

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return intent.ID, nil
}

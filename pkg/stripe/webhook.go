package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

var errSecretRequired = errors.New("stripe webhook secret is required")

// ConstructEvent verifies the Stripe-Signature header with this mode's secret.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.SigningSecret() == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

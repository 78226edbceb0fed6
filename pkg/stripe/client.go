package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/charge"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/subscription"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errNoModes        = errors.New("no stripe mode has an api key configured")
)

// Client talks to one Stripe account mode. Every list call waits on the
// shared limiter before requesting a page.
type Client struct {
	mode          enums.StripeMode
	signingSecret string
	limiter       *rate.Limiter

	customers      customer.Client
	charges        charge.Client
	invoices       invoice.Client
	paymentIntents paymentintent.Client
	sessions       session.Client
	subscriptions  subscription.Client
}

// NewClient builds a client for one mode after checking the key matches it.
func NewClient(ctx context.Context, mode enums.StripeMode, apiKey, signingSecret string, limiter *rate.Limiter, logg *logger.Logger) (*Client, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("stripe mode must be %q or %q", enums.StripeModeTest, enums.StripeModeLive)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(mode, apiKey); err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	backend := stripe.GetBackend(stripe.APIBackend)
	c := &Client{
		mode:           mode,
		signingSecret:  strings.TrimSpace(signingSecret),
		limiter:        limiter,
		customers:      customer.Client{B: backend, Key: apiKey},
		charges:        charge.Client{B: backend, Key: apiKey},
		invoices:       invoice.Client{B: backend, Key: apiKey},
		paymentIntents: paymentintent.Client{B: backend, Key: apiKey},
		sessions:       session.Client{B: backend, Key: apiKey},
		subscriptions:  subscription.Client{B: backend, Key: apiKey},
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", mode))
	}
	return c, nil
}

// Mode reports which account mode the client uses.
func (c *Client) Mode() enums.StripeMode {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret returns the webhook signing secret for this mode.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Clients holds the configured clients keyed by mode.
type Clients struct {
	byMode map[enums.StripeMode]*Client
}

// NewClients builds a client for every mode with an API key. The modes share
// one limiter since they count against the same outbound budget.
func NewClients(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Clients, error) {
	limiter := newLimiter(cfg)
	out := &Clients{byMode: map[enums.StripeMode]*Client{}}

	keys := []struct {
		mode   enums.StripeMode
		key    string
		secret string
	}{
		{enums.StripeModeTest, cfg.TestAPIKey, cfg.TestWebhookSecret},
		{enums.StripeModeLive, cfg.LiveAPIKey, cfg.LiveWebhookSecret},
	}
	for _, k := range keys {
		if strings.TrimSpace(k.key) == "" {
			continue
		}
		client, err := NewClient(ctx, k.mode, k.key, k.secret, limiter, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe %s client: %w", k.mode, err)
		}
		out.byMode[k.mode] = client
	}
	if len(out.byMode) == 0 {
		return nil, errNoModes
	}
	return out, nil
}

// ForMode returns the client for mode or an error when that mode has no key.
func (c *Clients) ForMode(mode enums.StripeMode) (*Client, error) {
	if c == nil {
		return nil, errNoModes
	}
	client, ok := c.byMode[mode]
	if !ok {
		return nil, fmt.Errorf("stripe mode %q is not configured", mode)
	}
	return client, nil
}

func newLimiter(cfg config.StripeConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func validateAPIKey(mode enums.StripeMode, key string) error {
	switch mode {
	case enums.StripeModeTest:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe mode %q requires a test secret key (sk_test/rk_test)", mode)
	case enums.StripeModeLive:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe mode %q requires a live secret key (sk_live/rk_live)", mode)
	default:
		return fmt.Errorf("unknown stripe mode %q", mode)
	}
}

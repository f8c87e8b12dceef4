package checkout

import (
	"context"

	"github.com/slok/cartpool/internal/browser"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
)

// Request is everything a driver needs to run a guest checkout.
type Request struct {
	Logger  log.Logger
	Session browser.Session
	URL     string
	// ProductCode is the site product identifier, not every site needs it.
	ProductCode string
	// Proxy is the proxy the session goes through, nil when running without proxy.
	Proxy                    *model.Proxy
	StyleIndex               int
	Size                     string
	ShippingAddress          model.Address
	ShippingSpeedIndex       int
	BillingAddress           model.Address
	AutoSolveCaptchas        bool
	NotificationEmailAddress string
	CardFriendlyName         string
}

// Driver knows how to run the checkout flow of a site.
// Drivers are invoked once per run, they are never retried.
type Driver interface {
	GuestCheckout(ctx context.Context, req Request) (model.CheckoutOutcome, error)
}

// DriverFunc is a helper to implement Driver with functions.
type DriverFunc func(ctx context.Context, req Request) (model.CheckoutOutcome, error)

func (f DriverFunc) GuestCheckout(ctx context.Context, req Request) (model.CheckoutOutcome, error) {
	return f(ctx, req)
}

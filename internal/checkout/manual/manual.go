package manual

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/slok/cartpool/internal/checkout"
	"github.com/slok/cartpool/internal/model"
)

// SiteName is the name the manual driver is registered with by default.
const SiteName = "manual"

// Driver opens the product page on the live session and hands the
// checkout to the operator, it always reports an incomplete checkout so
// the session is held open.
type Driver struct{}

var _ checkout.Driver = Driver{}

// NewDriver returns a new manual driver.
func NewDriver() Driver { return Driver{} }

func (Driver) GuestCheckout(ctx context.Context, req checkout.Request) (model.CheckoutOutcome, error) {
	if req.Session == nil {
		return model.CheckoutOutcome{}, fmt.Errorf("browser session is required")
	}
	if req.URL == "" {
		return model.CheckoutOutcome{}, fmt.Errorf("product url is required")
	}

	req.Logger.Infof("Opening product page %s", req.URL)
	if err := req.Session.Navigate(ctx, req.URL); err != nil {
		return model.CheckoutOutcome{}, fmt.Errorf("could not open product page: %w", err)
	}
	if err := req.Session.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return model.CheckoutOutcome{}, fmt.Errorf("product page not ready: %w", err)
	}

	req.Logger.Infof("Product page ready, size %q for %s %s, checkout left to the operator",
		req.Size, req.ShippingAddress.FullName(), req.ShippingAddress.City)

	return model.CheckoutOutcome{Complete: false}, nil
}

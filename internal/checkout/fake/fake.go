package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/cartpool/internal/checkout"
	"github.com/slok/cartpool/internal/model"
)

// SiteName is the name the fake driver is registered with by default.
const SiteName = "fake"

// DriverConfig is the script of the fake driver.
type DriverConfig struct {
	Complete bool
	Err      error
	// Delay is waited before returning, it honors the context.
	Delay time.Duration
	// SkipNavigation disables opening the request URL on the session.
	SkipNavigation bool
	// HangUntilSessionClosed simulates a driver ignoring its context that
	// only returns when the browser goes away.
	HangUntilSessionClosed bool
	// HangForever simulates a driver that never returns until Unblock is called.
	HangForever bool
	// PanicMsg makes the driver panic.
	PanicMsg string
	// RecordRequests keeps every received request, they carry the buyer
	// personal data so it's only meant for tests.
	RecordRequests bool
}

// Driver is a scripted checkout driver.
type Driver struct {
	cfg     DriverConfig
	mu      sync.Mutex
	reqs    []checkout.Request
	unblock chan struct{}
	once    sync.Once
}

var _ checkout.Driver = (*Driver)(nil)

// NewDriver returns a new fake driver.
func NewDriver(cfg DriverConfig) *Driver {
	return &Driver{cfg: cfg, unblock: make(chan struct{})}
}

func (d *Driver) GuestCheckout(ctx context.Context, req checkout.Request) (model.CheckoutOutcome, error) {
	if d.cfg.RecordRequests {
		d.mu.Lock()
		d.reqs = append(d.reqs, req)
		d.mu.Unlock()
	}

	if d.cfg.PanicMsg != "" {
		panic(d.cfg.PanicMsg)
	}

	if !d.cfg.SkipNavigation && req.Session != nil {
		if err := req.Session.Navigate(ctx, req.URL); err != nil {
			return model.CheckoutOutcome{}, fmt.Errorf("could not open product page: %w", err)
		}
	}

	switch {
	case d.cfg.HangForever:
		<-d.unblock
		return model.CheckoutOutcome{}, fmt.Errorf("driver unblocked")
	case d.cfg.HangUntilSessionClosed:
		for {
			if err := req.Session.Navigate(context.Background(), req.URL); err != nil {
				return model.CheckoutOutcome{}, fmt.Errorf("session lost: %w", err)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	if d.cfg.Delay > 0 {
		select {
		case <-ctx.Done():
			return model.CheckoutOutcome{}, ctx.Err()
		case <-time.After(d.cfg.Delay):
		}
	}

	if d.cfg.Err != nil {
		return model.CheckoutOutcome{}, d.cfg.Err
	}

	return model.CheckoutOutcome{Complete: d.cfg.Complete}, nil
}

// Unblock releases the drivers hanging forever.
func (d *Driver) Unblock() {
	d.once.Do(func() { close(d.unblock) })
}

// Requests returns the received requests when recording is enabled.
func (d *Driver) Requests() []checkout.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]checkout.Request{}, d.reqs...)
}

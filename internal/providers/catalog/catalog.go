// Package catalog holds the static table of provider types the gateway can
// build from configuration.
package catalog

import (
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/mercadopago"
	"github.com/cassiomorais/paygate/internal/providers/paypal"
	"github.com/cassiomorais/paygate/internal/providers/revolut"
	"github.com/cassiomorais/paygate/internal/providers/sandbox"
	"github.com/cassiomorais/paygate/internal/providers/stripe"
)

// Builders maps a provider type (config "type", defaulting to the key) to
// its constructor.
func Builders() map[string]providers.Builder {
	return map[string]providers.Builder{
		"stripe":      stripe.Build,
		"paypal":      paypal.Build,
		"revolut":     revolut.Build,
		"mercadopago": mercadopago.Build,
		"sandbox":     sandbox.Build,
	}
}

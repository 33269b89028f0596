package catalog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
)

func TestBuilders_AllConfiguredTypes(t *testing.T) {
	cfgs := map[string]config.ProviderConfig{
		"stripe":      {Enabled: true, SecretKey: "sk_test"},
		"paypal":      {Enabled: true, ClientID: "id", ClientSecret: "secret"},
		"revolut":     {Enabled: true, SecretKey: "sk_rev"},
		"mercadopago": {Enabled: true, AccessToken: "TEST-1"},
		"demo":        {Enabled: true, Type: "sandbox"},
	}

	reg, err := providers.NewRegistry(cfgs, Builders(), providers.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"demo", "mercadopago", "paypal", "revolut", "stripe"}, reg.Keys())

	kinds := map[string]providers.Kind{}
	for _, d := range reg.Describe() {
		kinds[d.Key] = d.Kind
	}
	assert.Equal(t, providers.KindCard, kinds["stripe"])
	assert.Equal(t, providers.KindWallet, kinds["paypal"])
	assert.Equal(t, providers.KindBankRail, kinds["revolut"])
	assert.Equal(t, providers.KindSandbox, kinds["demo"])
}

func TestBuilders_MissingCredentialsAbortStartup(t *testing.T) {
	for key, cfg := range map[string]config.ProviderConfig{
		"stripe":      {Enabled: true},
		"paypal":      {Enabled: true, ClientID: "id"},
		"revolut":     {Enabled: true},
		"mercadopago": {Enabled: true},
	} {
		_, err := providers.NewRegistry(map[string]config.ProviderConfig{key: cfg}, Builders())
		assert.ErrorIs(t, err, domainErrors.ErrProviderConfiguration, key)
	}
}

package gateway

import "context"

// IntentStatusSucceeded is the gateway status that allows payment confirmation.
const IntentStatusSucceeded = "succeeded"

// Intent is the gateway's handle for an attempted charge.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Client is the capability the enrollment lifecycle consumes: creating an
// intent for an amount in minor units and retrieving its current state.
type Client interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

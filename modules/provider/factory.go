package provider

import (
	"fmt"

	"salesflow/core/config"
	"salesflow/core/constants"
)

// AuthURLBuilder is implemented by adapters whose provider uses a hosted
// OAuth consent page.
type AuthURLBuilder interface {
	AuthCodeURL(state string) string
}

// Factory builds the closed set of adapters once, from config, at process
// start. Components receive it as an explicit dependency.
type Factory struct {
	adapters map[string]CalendarAdapter
}

func NewFactory(cfg *config.Config) *Factory {
	redirect := func(p string) string {
		return fmt.Sprintf("%s/api/v1/integrations/%s/callback", cfg.App.BaseURL, p)
	}
	return &Factory{
		adapters: map[string]CalendarAdapter{
			constants.ProviderGoogleCalendar:   NewGoogleAdapter(cfg.Google, redirect(constants.ProviderGoogleCalendar)),
			constants.ProviderMicrosoftOutlook: NewMicrosoftAdapter(cfg.Microsoft, redirect(constants.ProviderMicrosoftOutlook)),
			constants.ProviderCalendly:         NewCalendlyAdapter(cfg.Calendly, redirect(constants.ProviderCalendly)),
		},
	}
}

// Adapter returns the adapter for a provider name.
func (f *Factory) Adapter(providerName string) (CalendarAdapter, error) {
	a, ok := f.adapters[providerName]
	if !ok {
		return nil, fmt.Errorf("unknown calendar provider %q", providerName)
	}
	return a, nil
}

// Replace swaps an adapter. Used by tests to install fakes.
func (f *Factory) Replace(providerName string, a CalendarAdapter) {
	f.adapters[providerName] = a
}

package core

import (
	"fmt"
	"strings"
)

// Rate is priced in USD per single token.
type Rate struct {
	InputPerToken  float64
	OutputPerToken float64
}

// RatePerMTok builds a Rate from the per-million-token prices vendors publish.
func RatePerMTok(input, output float64) Rate {
	return Rate{
		InputPerToken:  input / 1_000_000.0,
		OutputPerToken: output / 1_000_000.0,
	}
}

// RateKey selects a row of a RateTable.
type RateKey struct {
	Provider string
	Model    string
}

func (k RateKey) normalized() RateKey {
	return RateKey{
		Provider: strings.ToLower(strings.TrimSpace(k.Provider)),
		Model:    strings.ToLower(strings.TrimSpace(k.Model)),
	}
}

// RateTable maps provider/model pairs to token rates. It is built once at
// start-up and only read afterwards.
type RateTable map[RateKey]Rate

// DefaultRates returns the built-in rate rows.
func DefaultRates() RateTable {
	return RateTable{
		{Provider: "anthropic", Model: "claude-3-5-sonnet-20240620"}: RatePerMTok(3, 15),
		{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"}: RatePerMTok(3, 15),
		{Provider: "anthropic", Model: "claude-3-opus-20240229"}:     RatePerMTok(15, 75),
		{Provider: "anthropic", Model: "claude-3-haiku-20240307"}:    RatePerMTok(0.25, 1.25),
		{Provider: "openai", Model: "gpt-4o"}:                        RatePerMTok(5, 15),
		{Provider: "openai", Model: "gpt-4o-mini"}:                   RatePerMTok(0.15, 0.6),
	}
}

// With returns a copy of t with row set, leaving t untouched.
func (t RateTable) With(provider, model string, rate Rate) RateTable {
	out := make(RateTable, len(t)+1)
	for k, v := range t {
		out[k.normalized()] = v
	}
	out[RateKey{Provider: provider, Model: model}.normalized()] = rate
	return out
}

// Lookup returns the rate row for provider/model, compared case-insensitively.
func (t RateTable) Lookup(provider, model string) (Rate, error) {
	want := RateKey{Provider: provider, Model: model}.normalized()
	for k, v := range t {
		if k.normalized() == want {
			return v, nil
		}
	}
	return Rate{}, fmt.Errorf("%w: %s/%s", ErrUnknownRate, provider, model)
}

// Cost prices usage against the provider/model row and formats it.
func (t RateTable) Cost(provider, model string, u Usage) (string, error) {
	rate, err := t.Lookup(provider, model)
	if err != nil {
		return "", err
	}
	return FormatUSD(CalculateCost(u, rate)), nil
}

// CalculateCost returns the USD cost for the usage snapshot.
func CalculateCost(u Usage, r Rate) float64 {
	input := float64(u.InputTokens) * r.InputPerToken
	output := float64(u.OutputTokens) * r.OutputPerToken
	return input + output
}

// FormatUSD renders an amount as a dollar string with three decimals.
func FormatUSD(v float64) string {
	return fmt.Sprintf("$%.3f", v)
}

package observability

import (
	"github.com/troykelly/playlistgen/internal/llm"
	"github.com/troykelly/playlistgen/internal/model"
)

// ModelPricing carries the current per-1000-token rates for one model.
// Rates are Money rather than float64: spec.md §4.3/§9 require the selector's
// cost accounting to never pass through a binary float.
type ModelPricing struct {
	InputPricePer1K  model.Money
	OutputPricePer1K model.Money
}

func mustRate(s string) model.Money {
	m, err := model.NewMoneyFromString(s)
	if err != nil {
		panic(err) // programmer error: literal rate constants must parse
	}
	return m
}

// PricingTable carries the models the selector is expected to run against.
// An unrecognised model falls back to the "default" row rather than
// panicking mid-batch.
var PricingTable = map[string]ModelPricing{
	"gpt-4o": {
		InputPricePer1K:  mustRate("0.0050"),
		OutputPricePer1K: mustRate("0.0150"),
	},
	"gpt-4o-mini": {
		InputPricePer1K:  mustRate("0.0015"),
		OutputPricePer1K: mustRate("0.0060"),
	},
	"default": {
		InputPricePer1K:  mustRate("0.0050"),
		OutputPricePer1K: mustRate("0.0150"),
	},
}

// CalculateCost converts one LLM turn's usage into a Money cost using the
// model's current per-1000-token rates.
func CalculateCost(modelName string, usage llm.Usage) model.Money {
	pricing, ok := PricingTable[modelName]
	if !ok {
		pricing = PricingTable["default"]
	}
	inputCost := pricing.InputPricePer1K.MulTokens(usage.InputTokens)
	outputCost := pricing.OutputPricePer1K.MulTokens(usage.OutputTokens)
	return inputCost.Add(outputCost)
}

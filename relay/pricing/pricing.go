// Package pricing resolves a model id to the unit prices billing applies.
// Prices live in the model catalogue as per-million units; a model without its
// own price map inherits from its base model chain, and a model with no
// resolvable map falls back to the configured defaults.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/model"
)

// maxBaseModelDepth bounds base-model chain walks. A chain deeper than this,
// or a cycle, resolves to the defaults.
const maxBaseModelDepth = 8

// perMillion converts a stored per-million unit price into a per-unit price.
var perMillion = decimal.NewFromInt(1_000_000)

// ModelPrice is the resolved price sheet for one model, all values per single
// token or request (already divided by one million).
type ModelPrice struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
	Request    decimal.Decimal
	Minimum    decimal.Decimal
}

// IsPerRequest reports whether the model is billed per request rather than
// per token.
func (p ModelPrice) IsPerRequest() bool {
	return p.Request.IsPositive()
}

// getModelFn is swapped out by tests to avoid a database.
var getModelFn = model.GetModelById

// Default returns the configured fallback price sheet.
func Default() ModelPrice {
	return ModelPrice{
		Prompt:     config.UsageDefaultTokenPrice.Div(perMillion),
		Completion: config.UsageDefaultTokenPrice.Div(perMillion),
		Request:    config.UsageDefaultRequestPrice.Div(perMillion),
		Minimum:    config.UsageMinimumCost,
	}
}

// Resolve walks the base-model chain starting at modelID and returns the
// first price map found. An unknown model, an exhausted chain, or a cycle
// yields the defaults; Resolve never fails.
func Resolve(modelID string) ModelPrice {
	seen := make(map[string]bool, 2)
	for depth := 0; depth < maxBaseModelDepth; depth++ {
		if modelID == "" || seen[modelID] {
			break
		}
		seen[modelID] = true

		m, err := getModelFn(modelID)
		if err != nil {
			break
		}
		if len(m.Price) > 0 {
			return fromPriceMap(m.Price)
		}
		modelID = m.BaseModelId
	}
	return Default()
}

// fromPriceMap reads the catalogue price keys. Missing or malformed keys fall
// back to zero; JSON numbers arrive as float64 which is exact for the integer
// per-million figures operators configure.
func fromPriceMap(price map[string]any) ModelPrice {
	return ModelPrice{
		Prompt:     mapDecimal(price, "prompt_price").Div(perMillion),
		Completion: mapDecimal(price, "completion_price").Div(perMillion),
		Request:    mapDecimal(price, "request_price").Div(perMillion),
		Minimum:    mapDecimal(price, "minimum_credit"),
	}
}

func mapDecimal(price map[string]any, key string) decimal.Decimal {
	switch v := price[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// Feature names a request may carry; each adds its configured flat surcharge.
const (
	FeatureImageGen    = "image_generation"
	FeatureCodeExecute = "code_interpreter"
	FeatureWebSearch   = "web_search"
	FeatureToolServer  = "direct_tool_servers"
)

// FeaturePrice sums the surcharges of the enabled features. Configured values
// are per-million and converted here; unknown features cost nothing.
func FeaturePrice(features []string) decimal.Decimal {
	total := decimal.Zero
	for _, feature := range features {
		switch feature {
		case FeatureImageGen:
			total = total.Add(config.UsageFeatureImageGenPrice)
		case FeatureCodeExecute:
			total = total.Add(config.UsageFeatureCodeExecutePrice)
		case FeatureWebSearch:
			total = total.Add(config.UsageFeatureWebSearchPrice)
		case FeatureToolServer:
			total = total.Add(config.UsageFeatureToolServerPrice)
		}
	}
	return total.Div(perMillion)
}

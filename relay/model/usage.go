package model

import "encoding/json"

// PromptTokensDetails mirrors the optional breakdown some vendors attach to
// prompt token counts.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
}

// CompletionTokensDetails mirrors the optional breakdown attached to
// completion token counts.
type CompletionTokensDetails struct {
	ReasoningTokens          int `json:"reasoning_tokens,omitempty"`
	AudioTokens              int `json:"audio_tokens,omitempty"`
	AcceptedPredictionTokens int `json:"accepted_prediction_tokens,omitempty"`
	RejectedPredictionTokens int `json:"rejected_prediction_tokens,omitempty"`
}

// Usage is the canonical token accounting record. Vendors report it under
// different field names; UnmarshalJSON collapses the known aliases so the rest
// of the billing path only ever sees prompt/completion/total.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`

	// Extra preserves vendor fields this service does not model, so a usage
	// block survives a round trip through the scope unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// Alias priority per canonical slot: the canonical spelling first, then the
// vendor spellings. Resolution takes the first non-zero count in this order,
// so an explicit zero in one dialect never shadows a real count in another
// and the result does not depend on JSON key order.
var (
	promptAliases     = []string{"prompt_tokens", "promptTokenCount", "input_tokens"}
	completionAliases = []string{"completion_tokens", "candidatesTokenCount", "output_tokens"}
	totalAliases      = []string{"total_tokens", "totalTokenCount", "total_token_count"}

	usageAliasKeys = func() map[string]bool {
		keys := map[string]bool{}
		for _, aliases := range [][]string{promptAliases, completionAliases, totalAliases} {
			for _, key := range aliases {
				keys[key] = true
			}
		}
		return keys
	}()
)

func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = Usage{}
	for key, value := range raw {
		if usageAliasKeys[key] {
			continue
		}
		switch key {
		case "prompt_tokens_details":
			_ = json.Unmarshal(value, &u.PromptTokensDetails)
		case "completion_tokens_details":
			_ = json.Unmarshal(value, &u.CompletionTokensDetails)
		default:
			if u.Extra == nil {
				u.Extra = map[string]json.RawMessage{}
			}
			u.Extra[key] = value
		}
	}

	u.PromptTokens = firstNonZeroCount(raw, promptAliases)
	u.CompletionTokens = firstNonZeroCount(raw, completionAliases)
	u.TotalTokens = firstNonZeroCount(raw, totalAliases)
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return nil
}

func firstNonZeroCount(raw map[string]json.RawMessage, aliases []string) int {
	for _, key := range aliases {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var count int
		if err := json.Unmarshal(value, &count); err != nil {
			continue
		}
		if count != 0 {
			return count
		}
	}
	return 0
}

func (u Usage) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out["prompt_tokens_details"] = u.PromptTokensDetails
	}
	if u.CompletionTokensDetails != nil {
		out["completion_tokens_details"] = u.CompletionTokensDetails
	}
	for key, value := range u.Extra {
		if _, taken := out[key]; !taken {
			out[key] = value
		}
	}
	return json.Marshal(out)
}

// Counted reports whether the vendor actually filled in any token counts.
// Vendors that omit usage on streamed chunks send all-zero or absent blocks.
func (u *Usage) Counted() bool {
	return u != nil && (u.PromptTokens > 0 || u.CompletionTokens > 0 || u.TotalTokens > 0)
}

// Package billing implements local token estimation, per-call credit
// deduction scopes and the admission check that guards paid requests.
package billing

import (
	"strings"
	"sync"

	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/logger"
	"github.com/lumichat/credit/relay/model"
)

var (
	tokenEncoderMu    sync.Mutex
	tokenEncoderMap   = map[string]*tiktoken.Tiktoken{}
	defaultEncoder    *tiktoken.Tiktoken
	defaultEncoderOne sync.Once
)

// normalizeModelID strips the configured prefix before tokeniser lookup.
func normalizeModelID(modelID string) string {
	if config.UsageModelPrefixToRemove != "" {
		modelID = strings.TrimPrefix(modelID, config.UsageModelPrefixToRemove)
	}
	return modelID
}

func getDefaultEncoder() *tiktoken.Tiktoken {
	defaultEncoderOne.Do(func() {
		enc, err := tiktoken.EncodingForModel(config.UsageDefaultEncodingModel)
		if err != nil {
			logger.Logger.Warn("load default token encoder, falling back to cl100k_base",
				zap.String("model", config.UsageDefaultEncodingModel), zap.Error(err))
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				panic("load cl100k_base encoding: " + err.Error())
			}
		}
		defaultEncoder = enc
	})
	return defaultEncoder
}

// getTokenEncoder returns the encoder for a model id, caching per normalised
// id. Unknown models share the configured default encoder.
func getTokenEncoder(modelID string) *tiktoken.Tiktoken {
	modelID = normalizeModelID(modelID)

	tokenEncoderMu.Lock()
	defer tokenEncoderMu.Unlock()
	if enc, ok := tokenEncoderMap[modelID]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc = getDefaultEncoder()
	}
	tokenEncoderMap[modelID] = enc
	return enc
}

// countTextTokensFn is swapped out by tests so they run without BPE files.
var countTextTokensFn = countTextTokens

func countTextTokens(modelID string, text string) int {
	if text == "" {
		return 0
	}
	if config.ApproximateTokenEnabled {
		return int(float64(len(text)) * 0.38)
	}
	return len(getTokenEncoder(modelID).Encode(text, nil, nil))
}

// CountTextTokens counts tokens of a plain string with the model's encoder.
func CountTextTokens(modelID string, text string) int {
	return countTextTokensFn(modelID, text)
}

// CountPromptTokens sums tokens over every message: text parts through the
// encoder, image parts through the image token calculator. Image failures are
// logged and count zero so estimation never blocks the user's request.
func CountPromptTokens(modelID string, messages []model.Message) int {
	tokens := 0
	for _, message := range messages {
		for _, part := range message.ParseContent() {
			switch part.Type {
			case model.ContentTypeText:
				tokens += CountTextTokens(modelID, part.Text)
			case model.ContentTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				imageTokens, err := CountImageTokens(modelID, part.ImageURL.Url, part.ImageURL.Detail)
				if err != nil {
					logger.Logger.Warn("count image tokens", zap.String("model", modelID), zap.Error(err))
					continue
				}
				tokens += imageTokens
			}
		}
	}
	return tokens
}

// Estimate computes usage locally for one response piece. Prompt tokens are
// immutable across a stream, so a positive cachedPromptTokens is reused
// instead of re-encoding the request.
func Estimate(modelID string, messages []model.Message, responseText string, cachedPromptTokens int) model.Usage {
	promptTokens := cachedPromptTokens
	if promptTokens <= 0 {
		promptTokens = CountPromptTokens(modelID, messages)
	}
	completionTokens := CountTextTokens(modelID, responseText)
	return model.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

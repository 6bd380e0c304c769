package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/logger"
	"github.com/lumichat/credit/common/metrics"
	dbmodel "github.com/lumichat/credit/model"
	"github.com/lumichat/credit/relay/model"
	"github.com/lumichat/credit/relay/pricing"
)

var sseDataPrefix = []byte("data: ")

// CreditDeduct accounts one LLM call. Open it before the upstream request,
// feed it every response piece in arrival order, and close it exactly once on
// every exit path; Close writes the single debit. Feed is not safe for
// concurrent use on the same scope.
type CreditDeduct struct {
	user     *dbmodel.User
	apiPath  string
	request  *model.GeneralChatRequest
	features []string

	price        pricing.ModelPrice
	featurePrice decimal.Decimal

	usage         model.Usage
	authoritative bool
	promptTokens  int
	closed        bool
}

// NewCreditDeduct opens a deduction scope for one request. Prices are
// resolved up front so a mid-stream catalogue change cannot split one call
// across two price sheets.
func NewCreditDeduct(user *dbmodel.User, apiPath string, request *model.GeneralChatRequest, features []string) *CreditDeduct {
	return &CreditDeduct{
		user:         user,
		apiPath:      apiPath,
		request:      request,
		features:     features,
		price:        pricing.Resolve(request.Model),
		featurePrice: pricing.FeaturePrice(features),
	}
}

func (s *CreditDeduct) IsStream() bool {
	return s.request.Stream
}

func (s *CreditDeduct) Usage() model.Usage {
	return s.usage
}

// Feed ingests one response piece. Raw bytes and strings are normalised the
// way SSE consumers see them: the "data: " prefix is stripped, "[DONE]" is
// swallowed, and unparseable text is wrapped in a minimal envelope so token
// estimation still runs.
func (s *CreditDeduct) Feed(chunk any) error {
	if len(s.request.Messages) == 0 {
		return errors.New("prompt messages is empty")
	}
	if s.authoritative {
		return nil
	}

	payload, skip := s.normalizeChunk(chunk)
	if skip {
		return nil
	}

	if s.IsStream() {
		return s.feedStreamChunk(payload)
	}
	return s.feedCompletion(payload)
}

func (s *CreditDeduct) normalizeChunk(chunk any) (payload []byte, skip bool) {
	var raw []byte
	switch v := chunk.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return nil, true
		}
		return blob, false
	}

	raw = bytes.TrimSpace(raw)
	raw = bytes.TrimPrefix(raw, sseDataPrefix)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("[DONE]")) {
		return nil, true
	}
	if !json.Valid(raw) || raw[0] != '{' {
		// Plain text from a non-conforming upstream still costs tokens.
		return s.synthesizeEnvelope(string(raw)), false
	}
	return raw, false
}

func (s *CreditDeduct) synthesizeEnvelope(text string) []byte {
	var envelope any
	if s.IsStream() {
		envelope = model.ChatCompletionChunk{
			Choices: []model.ChatCompletionChunkChoice{{Delta: model.Message{Content: text}}},
		}
	} else {
		envelope = model.ChatCompletion{
			Choices: []model.ChatCompletionChoice{{Message: model.Message{Content: text}}},
		}
	}
	blob, _ := json.Marshal(envelope)
	return blob
}

func (s *CreditDeduct) feedStreamChunk(payload []byte) error {
	var chunk model.ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		chunk = model.ChatCompletionChunk{
			Choices: []model.ChatCompletionChunkChoice{{Delta: model.Message{Content: string(payload)}}},
		}
	}

	if chunk.Usage.Counted() {
		s.usage = *chunk.Usage
		s.authoritative = true
		return nil
	}

	content := ""
	if len(chunk.Choices) > 0 {
		content = chunk.Choices[0].Delta.StringContent()
	}
	estimated := Estimate(s.request.Model, s.request.Messages, content, s.promptTokens)
	s.promptTokens = estimated.PromptTokens

	// Prompt tokens are sticky across a stream; completion tokens accumulate.
	s.usage.PromptTokens = estimated.PromptTokens
	s.usage.CompletionTokens += estimated.CompletionTokens
	s.usage.TotalTokens = s.usage.PromptTokens + s.usage.CompletionTokens
	return nil
}

func (s *CreditDeduct) feedCompletion(payload []byte) error {
	var completion model.ChatCompletion
	if err := json.Unmarshal(payload, &completion); err != nil {
		completion = model.ChatCompletion{
			Choices: []model.ChatCompletionChoice{{Message: model.Message{Content: string(payload)}}},
		}
	}

	if completion.Usage.Counted() {
		s.usage = *completion.Usage
		s.authoritative = true
		return nil
	}

	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.StringContent()
	}
	s.usage = Estimate(s.request.Model, s.request.Messages, content, 0)
	return nil
}

func (s *CreditDeduct) PromptPrice() decimal.Decimal {
	return s.price.Prompt.Mul(decimal.NewFromInt(int64(s.usage.PromptTokens)))
}

func (s *CreditDeduct) CompletionPrice() decimal.Decimal {
	return s.price.Completion.Mul(decimal.NewFromInt(int64(s.usage.CompletionTokens)))
}

func (s *CreditDeduct) RequestPrice() decimal.Decimal {
	return s.price.Request
}

func (s *CreditDeduct) FeaturePrice() decimal.Decimal {
	return s.featurePrice
}

// TotalPrice applies the pricing policy: a per-request price replaces token
// pricing entirely, feature surcharges always add, and the configured minimum
// cost floors the result.
func (s *CreditDeduct) TotalPrice() decimal.Decimal {
	var total decimal.Decimal
	if s.price.IsPerRequest() {
		total = s.RequestPrice().Add(s.featurePrice)
	} else {
		total = s.PromptPrice().Add(s.CompletionPrice()).Add(s.featurePrice)
	}
	if total.LessThan(config.UsageMinimumCost) {
		total = config.UsageMinimumCost
	}
	return total
}

// UsageWithCost is the usage block enriched with the running total, suitable
// for returning to the caller or injecting into a response body.
func (s *CreditDeduct) UsageWithCost() map[string]any {
	return map[string]any{
		"prompt_tokens":     s.usage.PromptTokens,
		"completion_tokens": s.usage.CompletionTokens,
		"total_tokens":      s.usage.TotalTokens,
		"total_price":       s.TotalPrice().InexactFloat64(),
	}
}

// UsageFrame renders the usage as one server-sent-events frame for injection
// into a response stream.
func (s *CreditDeduct) UsageFrame() []byte {
	blob, _ := json.Marshal(map[string]any{"usage": s.UsageWithCost()})
	return []byte(fmt.Sprintf("data: %s\n\n", blob))
}

// Close debits the accumulated total as one negative ledger delta. It never
// returns an error and is safe to call more than once: accounting failures
// are logged, the user's response must not depend on them.
func (s *CreditDeduct) Close() {
	if s.closed {
		return
	}
	s.closed = true

	start := time.Now()
	total := s.TotalPrice()
	detail := &dbmodel.LogDetail{
		APIPath: s.apiPath,
		APIParams: dbmodel.LogAPIParams{
			Model:    map[string]any{"id": s.request.Model},
			IsStream: s.IsStream(),
		},
		Usage: &dbmodel.LogUsage{
			TotalPrice:          total.InexactFloat64(),
			PromptUnitPrice:     s.price.Prompt.InexactFloat64(),
			CompletionUnitPrice: s.price.Completion.InexactFloat64(),
			RequestUnitPrice:    s.price.Request.InexactFloat64(),
			FeaturePrice:        s.featurePrice.InexactFloat64(),
			Features:            s.features,
			PromptTokens:        s.usage.PromptTokens,
			CompletionTokens:    s.usage.CompletionTokens,
			TotalTokens:         s.usage.TotalTokens,
		},
		Desc: fmt.Sprintf("chat completion with %s", s.request.Model),
	}

	_, err := dbmodel.AddCredit(s.user.Id, total.Neg(), detail)
	if err != nil {
		metrics.GlobalRecorder.RecordBillingError("persistence", "credit_deduct")
		logger.Logger.Error("debit credit on scope close",
			zap.String("user", s.user.Id),
			zap.String("model", s.request.Model),
			zap.String("total", total.String()),
			zap.Error(err))
	}
	metrics.GlobalRecorder.RecordBillingOperation(start, "credit_deduct", err == nil)
}

package billing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/random"
	dbmodel "github.com/lumichat/credit/model"
	"github.com/lumichat/credit/relay/model"
)

func withTestDecimal(t *testing.T, target *decimal.Decimal, value string) {
	t.Helper()
	prev := *target
	*target = decimal.RequireFromString(value)
	t.Cleanup(func() { *target = prev })
}

func insertPricedModel(t *testing.T, price map[string]any) string {
	t.Helper()
	id := "priced-" + random.GetUUID()
	require.NoError(t, dbmodel.DB.Create(&dbmodel.AIModel{
		Id:    id,
		Name:  id,
		Price: datatypes.JSONMap(price),
	}).Error)
	return id
}

func testUser() *dbmodel.User {
	return &dbmodel.User{Id: random.GetUUID()}
}

// Fresh user, authoritative usage, token pricing: cost 0.005, balance 9.995.
func TestScopeDebitsFreshUser(t *testing.T) {
	setupTestDatabase(t)
	withTestDecimal(t, &config.CreditDefaultCredit, "10")
	withTestDecimal(t, &config.UsageMinimumCost, "0")

	modelID := insertPricedModel(t, map[string]any{
		"prompt_price":     2.0,
		"completion_price": 6.0,
	})
	user := testUser()
	scope := NewCreditDeduct(user, "/api/chat/completions",
		&model.GeneralChatRequest{Model: modelID,
			Messages: []model.Message{{Role: "user", Content: "hi"}}}, nil)

	response := fmt.Sprintf(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],`+
		`"usage":{"prompt_tokens":1000,"completion_tokens":500,"total_tokens":1500},"model":%q}`, modelID)
	require.NoError(t, scope.Feed([]byte(response)))
	require.True(t, scope.TotalPrice().Equal(decimal.RequireFromString("0.005")),
		"got %s", scope.TotalPrice())

	scope.Close()

	credit, err := dbmodel.GetCreditByUserId(user.Id)
	require.NoError(t, err)
	assert.True(t, credit.Credit.Equal(decimal.RequireFromString("9.995")), "got %s", credit.Credit)

	count, err := dbmodel.CountCreditLogs([]string{user.Id})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// A per-request price replaces token pricing entirely.
func TestPerRequestPricingOverridesTokens(t *testing.T) {
	setupTestDatabase(t)
	withTestDecimal(t, &config.UsageMinimumCost, "0")

	modelID := insertPricedModel(t, map[string]any{
		"prompt_price":     100.0,
		"completion_price": 100.0,
		"request_price":    2000.0,
	})
	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: modelID,
			Messages: []model.Message{{Role: "user", Content: "hi"}}}, nil)
	require.NoError(t, scope.Feed([]byte(
		`{"choices":[{"index":0,"message":{"content":"x"}}],"usage":{"prompt_tokens":99999,"completion_tokens":99999}}`)))

	assert.True(t, scope.TotalPrice().Equal(decimal.RequireFromString("0.002")),
		"got %s", scope.TotalPrice())
}

// Exactly one ledger entry per scope, however often it is fed or closed.
func TestScopeWritesSingleDebit(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)
	withTestDecimal(t, &config.UsageMinimumCost, "0.001")

	user := testUser()
	scope := NewCreditDeduct(user, "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true,
			Messages: []model.Message{{Role: "user", Content: "hi"}}}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, scope.Feed(fmt.Sprintf(`data: {"choices":[{"index":0,"delta":{"content":"chunk %d"}}]}`, i)))
	}
	scope.Close()
	scope.Close()

	count, err := dbmodel.CountCreditLogs([]string{user.Id})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// Once a vendor usage block arrives, later chunks must not change the usage.
func TestAuthoritativeUsageLatch(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true,
			Messages: []model.Message{{Role: "user", Content: "hi"}}}, nil)

	require.NoError(t, scope.Feed(`data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`))
	latched := scope.Usage()

	require.NoError(t, scope.Feed(`data: {"choices":[{"index":0,"delta":{"content":"more text"}}]}`))
	require.NoError(t, scope.Feed(`data: {"choices":[],"usage":{"prompt_tokens":999,"completion_tokens":999}}`))

	assert.Equal(t, latched, scope.Usage())
	assert.Equal(t, 10, scope.Usage().PromptTokens)
	assert.Equal(t, 20, scope.Usage().CompletionTokens)
}

// Vendor dialects collapse into the canonical usage fields.
func TestAuthoritativeUsageVendorAliases(t *testing.T) {
	setupTestDatabase(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced",
			Messages: []model.Message{{Role: "user", Content: "hi"}}}, nil)
	require.NoError(t, scope.Feed(
		`{"choices":[{"index":0,"message":{"content":"x"}}],"usage":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`))

	assert.Equal(t, 7, scope.Usage().PromptTokens)
	assert.Equal(t, 3, scope.Usage().CompletionTokens)
	assert.Equal(t, 10, scope.Usage().TotalTokens)
}

// Feeding the same content as one completion or as consecutive stream chunks
// yields identical completion token counts.
func TestStreamEqualsNonStreamOnConcat(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)

	messages := []model.Message{{Role: "user", Content: "question"}}
	chunks := []string{"The ", "quick ", "brown ", "fox"}

	streamScope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true, Messages: messages}, nil)
	for _, chunk := range chunks {
		payload := fmt.Sprintf(`data: {"choices":[{"index":0,"delta":{"content":%q}}]}`, chunk)
		require.NoError(t, streamScope.Feed(payload))
	}

	fullScope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Messages: messages}, nil)
	payload := fmt.Sprintf(`{"choices":[{"index":0,"message":{"content":%q}}]}`, strings.Join(chunks, ""))
	require.NoError(t, fullScope.Feed(payload))

	assert.Equal(t, fullScope.Usage().CompletionTokens, streamScope.Usage().CompletionTokens)
	assert.Equal(t, fullScope.Usage().PromptTokens, streamScope.Usage().PromptTokens)
}

// The configured minimum cost floors every total.
func TestMinimumCostFloor(t *testing.T) {
	setupTestDatabase(t)
	withTestDecimal(t, &config.UsageMinimumCost, "0.01")

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced"}, nil)
	assert.True(t, scope.TotalPrice().Equal(decimal.RequireFromString("0.01")))
}

func TestFeedNormalisation(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true,
			Messages: []model.Message{{Role: "user", Content: "q"}}}, nil)

	// [DONE] and blank lines are swallowed
	require.NoError(t, scope.Feed("data: [DONE]"))
	require.NoError(t, scope.Feed("   "))
	assert.Equal(t, 0, scope.Usage().CompletionTokens)

	// unparseable text still costs tokens via the synthesised envelope
	require.NoError(t, scope.Feed("plain text from a broken upstream"))
	assert.Equal(t, len("plain text from a broken upstream"), scope.Usage().CompletionTokens)
}

// An explicit all-zero usage block is a placeholder, not an authoritative
// count; estimation keeps running and later chunks still accumulate.
func TestZeroUsagePlaceholderDoesNotLatch(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true,
			Messages: []model.Message{{Role: "user", Content: "q"}}}, nil)

	require.NoError(t, scope.Feed(
		`data: {"choices":[{"index":0,"delta":{"content":"text"}}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`))
	assert.Equal(t, len("text"), scope.Usage().CompletionTokens)

	require.NoError(t, scope.Feed(`data: {"choices":[{"index":0,"delta":{"content":"more"}}]}`))
	assert.Equal(t, len("textmore"), scope.Usage().CompletionTokens)
}

// A scope without prompt messages refuses to meter anything.
func TestFeedRequiresPromptMessages(t *testing.T) {
	setupTestDatabase(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced"}, nil)
	err := scope.Feed(`{"choices":[{"index":0,"message":{"content":"x"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)
	require.Error(t, err)
	assert.Equal(t, 0, scope.Usage().TotalTokens)
}

func TestFeedAcceptsStructuredChunks(t *testing.T) {
	setupTestDatabase(t)
	stubTextTokens(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced", Stream: true,
			Messages: []model.Message{{Role: "user", Content: "q"}}}, nil)
	chunk := model.ChatCompletionChunk{
		Choices: []model.ChatCompletionChunkChoice{{Delta: model.Message{Content: "typed"}}},
	}
	require.NoError(t, scope.Feed(chunk))
	assert.Equal(t, len("typed"), scope.Usage().CompletionTokens)
}

func TestUsageFrameShape(t *testing.T) {
	setupTestDatabase(t)

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced"}, nil)
	frame := string(scope.UsageFrame())
	assert.True(t, strings.HasPrefix(frame, "data: "))
	assert.True(t, strings.HasSuffix(frame, "\n\n"))
	assert.Contains(t, frame, `"total_price"`)

	cost := scope.UsageWithCost()
	assert.Contains(t, cost, "prompt_tokens")
	assert.Contains(t, cost, "total_price")
}

// Feature surcharges add on top of token pricing.
func TestFeatureSurcharges(t *testing.T) {
	setupTestDatabase(t)
	withTestDecimal(t, &config.UsageFeatureWebSearchPrice, "1000")
	withTestDecimal(t, &config.UsageMinimumCost, "0")

	scope := NewCreditDeduct(testUser(), "/api/chat/completions",
		&model.GeneralChatRequest{Model: "unpriced"}, []string{"web_search"})
	assert.True(t, scope.TotalPrice().Equal(decimal.RequireFromString("0.001")),
		"got %s", scope.TotalPrice())
}

package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/env"
)

// decimalEnv parses an exact decimal from the environment. Monetary settings
// must never pass through float64.
func decimalEnv(name string, defaultValue string) decimal.Decimal {
	raw := strings.TrimSpace(env.String(name, defaultValue))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid %s: %q: %v", name, raw, err))
	}
	return d
}

var (
	// SystemName is used as the product name on payment orders and in page titles.
	SystemName = env.String("SYSTEM_NAME", "Lumichat")

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)

	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// SQLDSN selects the database: postgres:// DSN for PostgreSQL, any other
	// non-empty DSN for MySQL, empty for SQLite.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath is the SQLite database file used when SQL_DSN is empty.
	SQLitePath = env.String("SQLITE_PATH", "lumichat-credit.db")
	// SQLiteBusyTimeout sets the SQLite busy handler timeout in milliseconds.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3500)
	// SQLMaxIdleConns caps idle database connections.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	// SQLMaxOpenConns caps open database connections.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	// SQLMaxLifetimeSeconds recycles pooled connections after this many seconds.
	SQLMaxLifetimeSeconds = env.Int("SQL_MAX_LIFETIME", 60)

	// MaxItemsPerPage caps paginated API responses to keep database queries predictable.
	MaxItemsPerPage = env.Int("MAX_ITEMS_PER_PAGE", 100)
	// PageItemCount is the default page size for ledger and redemption listings.
	PageItemCount = env.Int("PAGE_ITEM_COUNT", 30)

	// EnablePrometheusMetrics exposes the /metrics endpoint for Prometheus scrapers when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// MaxInlineImageSizeMB limits the size (MB) of images fetched for token
	// estimation to prevent oversized payloads from stalling billing.
	MaxInlineImageSizeMB = func() int {
		v := env.Int("MAX_INLINE_IMAGE_SIZE_MB", 30)
		if v < 0 {
			panic("MAX_INLINE_IMAGE_SIZE_MB must not be negative")
		}
		return v
	}()
	// UserContentRequestTimeoutSec bounds remote image fetches during token estimation (seconds).
	UserContentRequestTimeoutSec = env.Int("USER_CONTENT_REQUEST_TIMEOUT", 60)

	// CreditExchangeRatio converts one unit of gateway currency into internal credit.
	CreditExchangeRatio = decimalEnv("CREDIT_EXCHANGE_RATIO", "1")
	// CreditDefaultCredit is the starting balance a user receives when their
	// balance row is first created.
	CreditDefaultCredit = decimalEnv("CREDIT_DEFAULT_CREDIT", "0")
	// CreditNoCreditMsg is shown to users refused by the admission check.
	CreditNoCreditMsg = env.String("CREDIT_NO_CREDIT_MSG", "Insufficient credit, please top up your account")

	// UsageModelPrefixToRemove is stripped from model ids before tokeniser lookup,
	// e.g. "lumichat." for locally namespaced models.
	UsageModelPrefixToRemove = env.String("USAGE_CALCULATE_MODEL_PREFIX_TO_REMOVE", "")
	// UsageDefaultEncodingModel is the tokeniser used for model ids tiktoken does not know.
	UsageDefaultEncodingModel = env.String("USAGE_DEFAULT_ENCODING_MODEL", "gpt-4o")
	// UsageDefaultTokenPrice is the per-million token price applied when a model
	// carries no price map.
	UsageDefaultTokenPrice = decimalEnv("USAGE_CALCULATE_DEFAULT_TOKEN_PRICE", "0")
	// UsageDefaultRequestPrice is the per-million per-request price applied when
	// a model carries no price map.
	UsageDefaultRequestPrice = decimalEnv("USAGE_CALCULATE_DEFAULT_REQUEST_PRICE", "0")
	// UsageMinimumCost floors the total price of every deduction.
	UsageMinimumCost = decimalEnv("USAGE_CALCULATE_MINIMUM_COST", "0")

	// Feature surcharges, flat per-million prices added on top of token pricing.
	UsageFeatureImageGenPrice    = decimalEnv("USAGE_CALCULATE_FEATURE_IMAGE_GEN_PRICE", "0")
	UsageFeatureCodeExecutePrice = decimalEnv("USAGE_CALCULATE_FEATURE_CODE_EXECUTE_PRICE", "0")
	UsageFeatureWebSearchPrice   = decimalEnv("USAGE_CALCULATE_FEATURE_WEB_SEARCH_PRICE", "0")
	UsageFeatureToolServerPrice  = decimalEnv("USAGE_CALCULATE_FEATURE_TOOL_SERVER_PRICE", "0")

	// ApproximateTokenEnabled replaces tiktoken with a cheap length heuristic.
	// Only for deployments that cannot ship BPE files.
	ApproximateTokenEnabled = env.Bool("APPROXIMATE_TOKEN", false)

	// EZFPEndpoint is the payment gateway base URL.
	EZFPEndpoint = strings.TrimSpace(env.String("EZFP_ENDPOINT", ""))
	// EZFPPid is the merchant id assigned by the gateway.
	EZFPPid = strings.TrimSpace(env.String("EZFP_PID", ""))
	// EZFPKey is the shared signing secret. Never logged.
	EZFPKey = strings.TrimSpace(env.String("EZFP_KEY", ""))
	// EZFPPayPriority is the preferred pay method surfaced to the frontend.
	EZFPPayPriority = env.String("EZFP_PAY_PRIORITY", "")
	// EZFPCallbackHost is the externally reachable host that receives gateway callbacks.
	EZFPCallbackHost = strings.TrimSpace(env.String("EZFP_CALLBACK_HOST", ""))
	// EZFPAmountControl restricts checkout amounts: comma-separated "a-b" ranges
	// or bare values. Empty means any amount.
	EZFPAmountControl = strings.TrimSpace(env.String("EZFP_AMOUNT_CONTROL", ""))
)

var (
	UsingSQLite     atomic.Bool
	UsingPostgreSQL atomic.Bool
	UsingMySQL      atomic.Bool
)

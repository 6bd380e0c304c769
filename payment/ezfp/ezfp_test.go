package ezfp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/credit/common/config"
)

func withGatewayConfig(t *testing.T, endpoint string) {
	t.Helper()
	prevEndpoint, prevPid, prevKey := config.EZFPEndpoint, config.EZFPPid, config.EZFPKey
	prevHost, prevControl := config.EZFPCallbackHost, config.EZFPAmountControl
	config.EZFPEndpoint = endpoint
	config.EZFPPid = "1001"
	config.EZFPKey = "test-secret-key"
	config.EZFPCallbackHost = "https://chat.example.com"
	config.EZFPAmountControl = ""
	t.Cleanup(func() {
		config.EZFPEndpoint, config.EZFPPid, config.EZFPKey = prevEndpoint, prevPid, prevKey
		config.EZFPCallbackHost, config.EZFPAmountControl = prevHost, prevControl
	})
}

// Signing then verifying must succeed; mutating any signed field must not.
func TestSignVerifyRoundTrip(t *testing.T) {
	withGatewayConfig(t, "")

	payload := Sign(map[string]string{
		"pid":          "1001",
		"trade_status": "TRADE_SUCCESS",
		"out_trade_no": "20260824120000.abcdef",
		"money":        "5.00",
		"empty_field":  "",
	})
	assert.Equal(t, "MD5", payload["sign_type"])
	assert.Len(t, payload["sign"], 32)
	assert.True(t, Verify(payload))

	for _, field := range []string{"trade_status", "out_trade_no", "money"} {
		mutated := make(map[string]string, len(payload))
		for k, v := range payload {
			mutated[k] = v
		}
		mutated[field] = mutated[field] + "x"
		assert.False(t, Verify(mutated), "mutated %s must fail", field)
	}
}

func TestSignMatchesReferenceAlgorithm(t *testing.T) {
	withGatewayConfig(t, "")

	payload := Sign(map[string]string{
		"pid":   "1001",
		"money": "5.00",
		"name":  "Lumichat Credit",
	})

	params := []string{"money=5.00", "name=Lumichat Credit", "pid=1001"}
	sort.Strings(params)
	sum := md5.Sum([]byte(strings.Join(params, "&") + "test-secret-key"))
	assert.Equal(t, hex.EncodeToString(sum[:]), payload["sign"])
}

func TestVerifyRejectsWrongMerchant(t *testing.T) {
	withGatewayConfig(t, "")

	payload := Sign(map[string]string{"pid": "9999", "money": "5.00"})
	assert.False(t, Verify(payload))
}

func TestCheckAmount(t *testing.T) {
	withGatewayConfig(t, "")

	config.EZFPAmountControl = ""
	assert.True(t, CheckAmount(decimal.RequireFromString("123.45")))

	config.EZFPAmountControl = "1-10, 50, 100-200"
	tests := []struct {
		amount string
		want   bool
	}{
		{"1", true},
		{"5.5", true},
		{"10", true},
		{"10.01", false},
		{"50", true},
		{"49.99", false},
		{"150", true},
		{"201", false},
	}
	for _, tt := range tests {
		got := CheckAmount(decimal.RequireFromString(tt.amount))
		assert.Equal(t, tt.want, got, "amount %s", tt.amount)
	}
}

func TestGetDeviceFromUA(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 MicroMessenger/8.0", "wechat"},
		{"Mozilla/5.0 QQ/8.9", "qq"},
		{"AlipayClient/10.0", "alipay"},
		{"Mozilla/5.0 (Linux; Android 14)", "mobile"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0)", "pc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetDeviceFromUA(tt.ua), tt.ua)
	}
}

func TestCreateTradeSubmitsSignedForm(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = make(map[string]string, len(r.PostForm))
		for key := range r.PostForm {
			received[key] = r.PostForm.Get(key)
		}
		fmt.Fprint(w, `{"code":1,"payurl":"https://pay.example.com/x"}`)
	}))
	defer server.Close()
	withGatewayConfig(t, server.URL)

	result, err := CreateTrade(context.Background(), "alipay", "20260824120000.abc",
		decimal.RequireFromString("5"), "203.0.113.7", "Mozilla/5.0 (iPhone)")
	require.NoError(t, err)
	assert.EqualValues(t, 1, result["code"])
	assert.Equal(t, "https://pay.example.com/x", result["payurl"])

	assert.Equal(t, "1001", received["pid"])
	assert.Equal(t, "alipay", received["type"])
	assert.Equal(t, "5.00", received["money"])
	assert.Equal(t, "mobile", received["device"])
	assert.Equal(t, "203.0.113.7", received["clientip"])
	assert.Equal(t, "https://chat.example.com/api/credit/callback", received["notify_url"])
	assert.Equal(t, "https://chat.example.com/api/credit/callback/redirect", received["return_url"])
	assert.True(t, Verify(received), "gateway must be able to verify our signature")
}

func TestCreateTradeRefusesControlledAmount(t *testing.T) {
	withGatewayConfig(t, "http://127.0.0.1:1")
	config.EZFPAmountControl = "10-20"

	result, err := CreateTrade(context.Background(), "alipay", "trade-no",
		decimal.RequireFromString("5"), "203.0.113.7", "")
	require.NoError(t, err)
	assert.EqualValues(t, -1, result["code"])
	assert.Contains(t, result["msg"], "amount invalid")
}

func TestCreateTradeRejectsBadResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway error</html>")
	}))
	defer server.Close()
	withGatewayConfig(t, server.URL)

	_, err := CreateTrade(context.Background(), "alipay", "trade-no",
		decimal.RequireFromString("5"), "203.0.113.7", "")
	require.Error(t, err)
}

func TestSignatureStableUnderJSONRoundTrip(t *testing.T) {
	withGatewayConfig(t, "")

	payload := Sign(map[string]string{"pid": "1001", "money": "5.00"})
	blob, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.True(t, Verify(decoded))
}

func TestVerifyCallbackQueryShape(t *testing.T) {
	withGatewayConfig(t, "")

	callback := Sign(map[string]string{
		"pid":          "1001",
		"trade_no":     "ez-internal-1",
		"out_trade_no": "20260824120000.abc",
		"type":         "alipay",
		"money":        "5.00",
		"trade_status": "TRADE_SUCCESS",
	})
	assert.True(t, Verify(callback))

	// gateways retry with identical payloads; verification is stateless
	assert.True(t, Verify(callback))
}

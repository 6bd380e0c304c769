// Package ezfp talks to an EZFP-compatible payment gateway: MD5-signed
// form payloads, a checkout endpoint and signed webhooks.
package ezfp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/client"
	"github.com/lumichat/credit/common/config"
)

// Sign computes the gateway signature over a payload and stamps sign and
// sign_type into it. Empty fields are excluded, as are the signature fields
// themselves; the remaining "k=v" pairs are sorted, joined with "&" and the
// raw shared secret is appended before hashing.
func Sign(payload map[string]string) map[string]string {
	params := make([]string, 0, len(payload))
	for k, v := range payload {
		if v == "" || k == "sign" || k == "sign_type" {
			continue
		}
		params = append(params, k+"="+v)
	}
	sort.Strings(params)

	plain := strings.Join(params, "&") + config.EZFPKey
	sum := md5.Sum([]byte(plain))
	payload["sign"] = hex.EncodeToString(sum[:])
	payload["sign_type"] = "MD5"
	return payload
}

// Verify checks a callback payload: the merchant id must match and re-signing
// a copy must reproduce both signature fields.
func Verify(payload map[string]string) bool {
	if payload["pid"] != config.EZFPPid {
		return false
	}
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	Sign(copied)
	return payload["sign"] == copied["sign"] && payload["sign_type"] == copied["sign_type"]
}

// CheckAmount evaluates the configured amount-control expression, a
// comma-separated list of "a-b" ranges and bare values. An empty expression
// admits any amount.
func CheckAmount(amount decimal.Decimal) bool {
	if config.EZFPAmountControl == "" {
		return true
	}
	for _, check := range strings.Split(config.EZFPAmountControl, ",") {
		values := strings.Split(strings.TrimSpace(check), "-")
		switch len(values) {
		case 2:
			low, err1 := decimal.NewFromString(strings.TrimSpace(values[0]))
			high, err2 := decimal.NewFromString(strings.TrimSpace(values[1]))
			if err1 == nil && err2 == nil &&
				amount.GreaterThanOrEqual(low) && amount.LessThanOrEqual(high) {
				return true
			}
		case 1:
			exact, err := decimal.NewFromString(strings.TrimSpace(values[0]))
			if err == nil && amount.Equal(exact) {
				return true
			}
		}
	}
	return false
}

// GetDeviceFromUA infers the gateway's device hint from a user agent.
func GetDeviceFromUA(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "micromessenger"):
		return "wechat"
	case strings.Contains(ua, "qq"):
		return "qq"
	case strings.Contains(ua, "alipay"):
		return "alipay"
	case strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "pc"
	}
}

// CreateTrade submits a checkout to the gateway and returns its JSON response
// verbatim. Amount-control violations come back as the gateway-shaped
// {code:-1, msg} result rather than an error, so callers forward them as-is.
func CreateTrade(ctx context.Context, payType string, outTradeNo string, amount decimal.Decimal, clientIP string, userAgent string) (map[string]any, error) {
	if !CheckAmount(amount) {
		return map[string]any{
			"code": -1,
			"msg": fmt.Sprintf("amount invalid, allows %s",
				strings.Join(strings.Split(config.EZFPAmountControl, ","), " ")),
		}, nil
	}

	callbackHost := strings.TrimRight(config.EZFPCallbackHost, "/")
	payload := Sign(map[string]string{
		"pid":          config.EZFPPid,
		"type":         payType,
		"out_trade_no": outTradeNo,
		"notify_url":   callbackHost + "/api/credit/callback",
		"return_url":   callbackHost + "/api/credit/callback/redirect",
		"name":         config.SystemName + " Credit",
		"money":        fmt.Sprintf("%.2f", amount.InexactFloat64()),
		"clientip":     clientIP,
		"device":       GetDeviceFromUA(userAgent),
	})

	form := url.Values{}
	for k, v := range payload {
		form.Set(k, v)
	}
	endpoint := strings.TrimRight(config.EZFPEndpoint, "/") + "/mapi.php"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build checkout request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.PaymentHTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "submit checkout")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read checkout response")
	}
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrapf(err, "parse checkout response %q", body)
	}
	return result, nil
}

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageCollapsesVendorAliases(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		prompt  int
		compl   int
		total   int
	}{
		{
			"openai",
			`{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}`,
			10, 5, 15,
		},
		{
			"gemini",
			`{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}`,
			7, 3, 10,
		},
		{
			"claude",
			`{"input_tokens":4,"output_tokens":6}`,
			4, 6, 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var usage Usage
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &usage))
			assert.Equal(t, tt.prompt, usage.PromptTokens)
			assert.Equal(t, tt.compl, usage.CompletionTokens)
			assert.Equal(t, tt.total, usage.TotalTokens)
		})
	}
}

// A canonical zero must not shadow a non-zero vendor alias, whatever order
// the decoder sees the keys in.
func TestUsageZeroDoesNotShadowAlias(t *testing.T) {
	payload := `{"prompt_tokens":0,"input_tokens":123,"completion_tokens":0,"output_tokens":45}`
	for i := 0; i < 200; i++ {
		var usage Usage
		require.NoError(t, json.Unmarshal([]byte(payload), &usage))
		require.Equal(t, 123, usage.PromptTokens)
		require.Equal(t, 45, usage.CompletionTokens)
		require.Equal(t, 168, usage.TotalTokens)
	}
}

func TestUsageCanonicalSpellingWinsWhenBothNonZero(t *testing.T) {
	var usage Usage
	require.NoError(t, json.Unmarshal([]byte(`{"prompt_tokens":10,"input_tokens":123}`), &usage))
	assert.Equal(t, 10, usage.PromptTokens)
}

func TestUsagePreservesUnknownFields(t *testing.T) {
	payload := `{"prompt_tokens":1,"completion_tokens":2,"vendor_specific":{"cache_hits":9}}`
	var usage Usage
	require.NoError(t, json.Unmarshal([]byte(payload), &usage))
	require.Contains(t, usage.Extra, "vendor_specific")

	out, err := json.Marshal(usage)
	require.NoError(t, err)
	var round map[string]any
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Contains(t, round, "vendor_specific")
	assert.EqualValues(t, 1, round["prompt_tokens"])
}

func TestUsageCounted(t *testing.T) {
	var nilUsage *Usage
	assert.False(t, nilUsage.Counted())
	assert.False(t, (&Usage{}).Counted())
	assert.True(t, (&Usage{CompletionTokens: 1}).Counted())
}

func TestMessageStringContent(t *testing.T) {
	plain := Message{Content: "hello"}
	assert.Equal(t, "hello", plain.StringContent())

	parts := Message{Content: []any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "http://x"}},
		map[string]any{"type": "text", "text": "b"},
	}}
	assert.Equal(t, "ab", parts.StringContent())

	parsed := parts.ParseContent()
	require.Len(t, parsed, 3)
	assert.Equal(t, ContentTypeImageURL, parsed[1].Type)
	assert.Equal(t, "http://x", parsed[1].ImageURL.Url)

	// unknown part tags are dropped from parsing and cost nothing
	unknown := Message{Content: []any{map[string]any{"type": "video_url"}}}
	assert.Empty(t, unknown.ParseContent())
}

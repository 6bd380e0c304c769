package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/credit/common/random"
)

func TestUpsertMessageErrorCreatesChat(t *testing.T) {
	setupTestDatabase(t)

	chatID := random.GetUUID()
	require.NoError(t, UpsertMessageError(chatID, "msg-1", "Insufficient credit"))

	var chat Chat
	require.NoError(t, DB.First(&chat, "id = ?", chatID).Error)
	message, ok := chat.Messages["msg-1"].(map[string]any)
	require.True(t, ok)
	errBlock, ok := message["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Insufficient credit", errBlock["content"])
}

func TestUpsertMessageErrorKeepsOtherMessages(t *testing.T) {
	setupTestDatabase(t)

	chatID := random.GetUUID()
	require.NoError(t, UpsertMessageError(chatID, "msg-1", "first"))
	require.NoError(t, UpsertMessageError(chatID, "msg-2", "second"))

	var chat Chat
	require.NoError(t, DB.First(&chat, "id = ?", chatID).Error)
	assert.Len(t, chat.Messages, 2)
}

func TestUpsertMessageErrorValidatesIds(t *testing.T) {
	setupTestDatabase(t)
	require.Error(t, UpsertMessageError("", "msg", "content"))
	require.Error(t, UpsertMessageError("chat", "", "content"))
}

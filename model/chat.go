package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/datatypes"

	"github.com/lumichat/credit/common/helper"
)

// Chat is the minimal view of the platform's chat store this service touches:
// a message map keyed by message id. The admission controller annotates a
// message with an error notice when it refuses a request, so the UI can show
// the user why nothing streamed back.
type Chat struct {
	Id        string            `json:"id" gorm:"type:char(32);primaryKey"`
	UserId    string            `json:"user_id" gorm:"type:char(32);index"`
	Messages  datatypes.JSONMap `json:"messages"`
	UpdatedAt int64             `json:"updated_at" gorm:"bigint"`
}

// UpsertMessageError merges {"error":{"content": content}} into the given
// message of a chat. A missing chat row is created so the notice is never
// dropped.
func UpsertMessageError(chatID string, messageID string, content string) error {
	if chatID == "" || messageID == "" {
		return errors.New("chat id or message id is empty")
	}

	var chat Chat
	err := DB.First(&chat, "id = ?", chatID).Error
	if err != nil {
		chat = Chat{Id: chatID, Messages: datatypes.JSONMap{}}
	}
	if chat.Messages == nil {
		chat.Messages = datatypes.JSONMap{}
	}

	message, _ := chat.Messages[messageID].(map[string]any)
	if message == nil {
		message = map[string]any{}
	}
	message["error"] = map[string]any{"content": content}
	chat.Messages[messageID] = message
	chat.UpdatedAt = helper.GetTimestamp()

	if err := DB.Save(&chat).Error; err != nil {
		return errors.Wrapf(err, "annotate message %s of chat %s", messageID, chatID)
	}
	return nil
}

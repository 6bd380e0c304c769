package model

import "encoding/json"

// Content part types accepted inside a structured message content array.
const (
	ContentTypeText       = "text"
	ContentTypeImageURL   = "image_url"
	ContentTypeInputAudio = "input_audio"
	ContentTypeFile       = "file"
)

type ImageURL struct {
	Url    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type InputAudio struct {
	Data   string `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
}

// MessageContentPart is one element of a multimodal content array.
type MessageContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *ImageURL   `json:"image_url,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
	File       any         `json:"file,omitempty"`
}

// Message is a chat message whose Content is either a plain string or an
// array of typed parts, as the chat completion API allows.
type Message struct {
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// StringContent returns the textual content: the string itself, or the
// concatenation of all text parts of a structured array.
func (m Message) StringContent() string {
	content, ok := m.Content.(string)
	if ok {
		return content
	}
	parts, ok := m.Content.([]any)
	if !ok {
		return ""
	}
	var out string
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if part["type"] == ContentTypeText {
			if text, ok := part["text"].(string); ok {
				out += text
			}
		}
	}
	return out
}

// ParseContent normalises the content field into typed parts. A plain string
// becomes a single text part; malformed array elements are skipped.
func (m Message) ParseContent() []MessageContentPart {
	var parts []MessageContentPart
	content, ok := m.Content.(string)
	if ok {
		parts = append(parts, MessageContentPart{Type: ContentTypeText, Text: content})
		return parts
	}

	anyList, ok := m.Content.([]any)
	if !ok {
		return parts
	}
	for _, raw := range anyList {
		blob, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var part MessageContentPart
		if err := json.Unmarshal(blob, &part); err != nil {
			continue
		}
		switch part.Type {
		case ContentTypeText, ContentTypeImageURL, ContentTypeInputAudio, ContentTypeFile:
			parts = append(parts, part)
		}
	}
	return parts
}

// GeneralChatRequest is the request slice billing cares about.
type GeneralChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages,omitempty"`
	Stream   bool      `json:"stream,omitempty"`
}

// ChatCompletionChoice is one candidate of a non-stream completion response.
type ChatCompletionChoice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// ChatCompletion is the non-stream response envelope.
type ChatCompletion struct {
	Id      string                 `json:"id,omitempty"`
	Object  string                 `json:"object,omitempty"`
	Model   string                 `json:"model,omitempty"`
	Choices []ChatCompletionChoice `json:"choices,omitempty"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

// ChatCompletionChunkChoice is one candidate slice of a streamed chunk.
type ChatCompletionChunkChoice struct {
	Index int     `json:"index"`
	Delta Message `json:"delta"`
}

// ChatCompletionChunk is the streamed response envelope.
type ChatCompletionChunk struct {
	Id      string                      `json:"id,omitempty"`
	Object  string                      `json:"object,omitempty"`
	Model   string                      `json:"model,omitempty"`
	Choices []ChatCompletionChunkChoice `json:"choices,omitempty"`
	Usage   *Usage                      `json:"usage,omitempty"`
}

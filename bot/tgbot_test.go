package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"cuttlefish/core"
	"cuttlefish/storage"
)

func TestWants(t *testing.T) {
	bot := &TgBot{}

	command := []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}}
	photo := []tgbotapi.PhotoSize{{FileID: "f1", Width: 90, Height: 160}}

	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want bool
	}{
		{
			name: "command in a group",
			msg:  &tgbotapi.Message{Text: "/flux a fox", Entities: &command, Chat: &tgbotapi.Chat{Type: "group"}},
			want: true,
		},
		{
			name: "photo with caption in a group",
			msg:  &tgbotapi.Message{Photo: &photo, Caption: "make it a sketch", Chat: &tgbotapi.Chat{Type: "group"}},
			want: true,
		},
		{
			name: "photo without caption",
			msg:  &tgbotapi.Message{Photo: &photo, Chat: &tgbotapi.Chat{Type: "group"}},
			want: false,
		},
		{
			name: "plain text in a group",
			msg:  &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{Type: "group"}},
			want: false,
		},
		{
			name: "plain text in a private chat",
			msg:  &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{Type: "private"}},
			want: true,
		},
		{
			name: "whitespace text in a private chat",
			msg:  &tgbotapi.Message{Text: "   ", Chat: &tgbotapi.Chat{Type: "private"}},
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bot.wants(tc.msg))
		})
	}
}

func TestUserText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "empty prompt",
			err:  &core.GenError{Kind: core.KindInvalidPrompt, Message: "empty"},
			want: "❌ Please provide a prompt describing the image you want.",
		},
		{
			name: "prompt too long",
			err:  &core.GenError{Kind: core.KindInvalidPrompt, Message: "too_long"},
			want: "❌ That prompt is too long. Please shorten it and try again.",
		},
		{
			name: "session busy",
			err:  &core.GenError{Kind: core.KindSessionBusy, Message: "a generation is already running for this session"},
			want: "⏳ A generation is already running in this chat. Please wait for it to finish.",
		},
		{
			name: "rate limited with a hint",
			err:  &core.GenError{Kind: core.KindRateLimited, Message: "runware rate limit", RetryAfter: 30 * time.Second},
			want: "⏳ The image service is rate limiting us. Please try again in 30s.",
		},
		{
			name: "rate limited without a hint",
			err:  &core.GenError{Kind: core.KindRateLimited, Message: "runware rate limit"},
			want: "⏳ The image service is rate limiting us. Please try again in a minute.",
		},
		{
			name: "rejected",
			err:  &core.GenError{Kind: core.KindRejected, Message: "contentModeration: prompt was flagged"},
			want: "🚫 The image service refused this prompt. Please try a different one.",
		},
		{
			name: "timeout",
			err:  &core.GenError{Kind: core.KindTimeout, Message: "no result within 90s"},
			want: "⌛ The image did not arrive in time. Please try again.",
		},
		{
			name: "cancelled",
			err:  &core.GenError{Kind: core.KindCancelled, Message: "generation cancelled"},
			want: "Generation cancelled.",
		},
		{
			name: "unclassified error",
			err:  errors.New("boom"),
			want: "❌ Failed to generate image. Please try again.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, userText(tc.err))
		})
	}
}

func TestFormatRecord(t *testing.T) {
	ok := storage.Record{Model: "flux", Prompt: "a sunset", Outcome: "ok"}
	assert.Equal(t, "✅ flux: a sunset", formatRecord(ok))

	failed := storage.Record{Model: "hidream", Prompt: "a sunset", Outcome: "transient"}
	assert.Equal(t, "❌ hidream: a sunset (transient)", formatRecord(failed))

	long := storage.Record{Model: "flux", Prompt: strings.Repeat("ї", 70), Outcome: "ok"}
	assert.Equal(t, "✅ flux: "+strings.Repeat("ї", 60)+"...", formatRecord(long))
}

func TestNoPromptTextNamesTheCommand(t *testing.T) {
	text := noPromptText("hidream")
	assert.Contains(t, text, "`/hidream a beautiful sunset`")
	assert.Contains(t, text, "`/hidream -n 3 -s a beautiful sunset`")
	assert.NotContains(t, text, "/flux")

	assert.Contains(t, optionsOnlyText("fast"), "`/fast --landscape -n 2 a beautiful sunset`")
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "1 image", countLabel(1))
	assert.Equal(t, "3 images", countLabel(3))

	assert.Equal(t, "🖼️ Landscape", orientationLabel(core.OrientationLandscape))
	assert.Equal(t, "⬛ Square", orientationLabel(core.OrientationSquare))
	assert.Equal(t, "📱 Portrait", orientationLabel(core.OrientationPortrait))
	assert.Equal(t, "📱 Portrait", orientationLabel("anything else"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "image.png", fileName("image/png"))
	assert.Equal(t, "image.jpg", fileName("image/jpeg"))
	assert.Equal(t, "image.jpg", fileName(""))
}

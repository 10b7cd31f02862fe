package adapter

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		in        string
		limit     int
		parseMode string
		want      []string
	}{
		{"short", "hello", 10, "", []string{"hello"}},
		{"empty", "", 10, "", []string{""}},
		{"hard cut", "abcdefghij", 4, "", []string{"abcd", "efgh", "ij"}},
		{"newline preferred", "aaaa\nbbbbbb", 8, "", []string{"aaaa", "bbbbbb"}},
		{"html tag kept whole", "abc <b>x</b>", 6, "HTML", []string{"abc ", "<b>x", "</b>"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, splitTelegramText(tc.in, tc.limit, tc.parseMode))
		})
	}
}

func TestSplitTelegramTextRuneSafe(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("é", 9001)
	chunks := splitTelegramText(in, telegramTextLimit, "")
	require.Len(t, chunks, 3)
	total := 0
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), telegramTextLimit)
		total += utf8.RuneCountInString(c)
	}
	assert.Equal(t, 9001, total)
}

func TestToUpdate(t *testing.T) {
	t.Parallel()
	_, ok := toUpdate(nil)
	assert.False(t, ok)

	up, ok := toUpdate(&tele.Message{
		ID:       5,
		ThreadID: 9,
		Text:     "/summarize https://example.com",
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 42, Username: "ann"},
	})
	require.True(t, ok)
	require.NotNil(t, up.Message)
	assert.Equal(t, int64(-100), up.Message.ChatID)
	assert.Equal(t, 9, up.Message.ThreadID)
	assert.Equal(t, int64(42), up.Message.FromID)
	assert.True(t, up.Message.IsGroup)

	up, ok = toUpdate(&tele.Message{ID: 1, Chat: &tele.Chat{ID: 3, Type: tele.ChatPrivate}})
	require.True(t, ok)
	assert.Zero(t, up.Message.FromID)
	assert.False(t, up.Message.IsGroup)
}

func TestIsNotModified(t *testing.T) {
	t.Parallel()
	assert.True(t, isNotModified(errors.New("telegram: Bad Request: message is not modified (400)")))
	assert.False(t, isNotModified(errors.New("telegram: chat not found (400)")))
	assert.False(t, isNotModified(nil))
}

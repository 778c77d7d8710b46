package ingest

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"
)

func TestShouldSkipSender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from *models.User
		want bool
	}{
		{"nil sender", nil, true},
		{"bot", &models.User{ID: 99, IsBot: true}, true},
		{"channel relay account", &models.User{ID: 777000}, true},
		{"group anonymous bot", &models.User{ID: 1087968824}, true},
		{"channel anonymous bot", &models.User{ID: 136817688}, true},
		{"regular user", &models.User{ID: 1001}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := ShouldSkipSender(tc.from); got != tc.want {
				t.Errorf("ShouldSkipSender() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFullName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		first, last, want string
	}{
		{"Ada", "Lovelace", "Ada Lovelace"},
		{"Ada", "", "Ada"},
		{"", "", ""},
		{" Ada ", " Lovelace ", "Ada Lovelace"},
	}

	for _, tc := range tests {
		got := FullName(&models.User{FirstName: tc.first, LastName: tc.last})
		if got != tc.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestCountEntities(t *testing.T) {
	t.Parallel()

	msg := &models.Message{
		Text: "hey @alice check https://example.com and https://example.org",
		Entities: []models.MessageEntity{
			{Type: models.MessageEntityTypeMention},
			{Type: models.MessageEntityTypeURL},
			{Type: models.MessageEntityTypeURL},
			{Type: models.MessageEntityTypeBold},
		},
		CaptionEntities: []models.MessageEntity{
			{Type: models.MessageEntityTypeTextLink},
			{Type: models.MessageEntityTypeTextMention},
		},
	}

	links, mentions := countEntities(msg)
	if links != 3 {
		t.Errorf("links = %d, want 3", links)
	}
	if mentions != 2 {
		t.Errorf("mentions = %d, want 2", mentions)
	}
}

func TestMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *models.Message
		want string
	}{
		{"text only", &models.Message{Text: "hi"}, ""},
		{"photo", &models.Message{Photo: []models.PhotoSize{{FileID: "x"}}}, "photo"},
		{"video", &models.Message{Video: &models.Video{}}, "video"},
		{"sticker", &models.Message{Sticker: &models.Sticker{}}, "sticker"},
		{"voice", &models.Message{Voice: &models.Voice{}}, "voice"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := mediaType(tc.msg); got != tc.want {
				t.Errorf("mediaType() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildMessageMetaTruncatesPreview(t *testing.T) {
	t.Parallel()

	msg := &models.Message{
		From: &models.User{Username: "alice", FirstName: "Alice"},
		Text: strings.Repeat("a", 2000),
	}

	raw := buildMessageMeta(msg, "", "main")

	var meta messageMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("meta is not valid JSON: %v", err)
	}
	if len(meta.Message.TextPreview) != maxTextPreview {
		t.Errorf("preview length = %d, want %d", len(meta.Message.TextPreview), maxTextPreview)
	}
	if meta.User.Username != "alice" {
		t.Errorf("username = %q, want alice", meta.User.Username)
	}
	if meta.Source.Type != "webhook" || meta.Source.Bot != "main" {
		t.Errorf("unexpected source block: %+v", meta.Source)
	}
}

func TestTruncatePreviewKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"three-byte runes", strings.Repeat("日", 200)},
		{"two-byte runes", strings.Repeat("é", 300)},
		{"emoji", strings.Repeat("🎉", 150)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := truncatePreview(tc.text)
			if len(got) > maxTextPreview {
				t.Errorf("preview length = %d, want <= %d", len(got), maxTextPreview)
			}
			if !utf8.ValidString(got) {
				t.Error("preview is not valid UTF-8")
			}
			if strings.ContainsRune(got, utf8.RuneError) {
				t.Error("preview contains a replacement character")
			}
			if !strings.HasPrefix(tc.text, got) {
				t.Error("preview is not a prefix of the original text")
			}
		})
	}
}

func TestBuildMessageMetaUsesCaption(t *testing.T) {
	t.Parallel()

	msg := &models.Message{
		From:    &models.User{Username: "bob"},
		Caption: "photo caption",
		Photo:   []models.PhotoSize{{FileID: "x"}},
	}

	raw := buildMessageMeta(msg, "photo", "main")

	var meta messageMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("meta is not valid JSON: %v", err)
	}
	if meta.Message.TextPreview != "photo caption" {
		t.Errorf("preview = %q, want caption text", meta.Message.TextPreview)
	}
	if !meta.Message.HasMedia || meta.Message.MediaType != "photo" {
		t.Errorf("unexpected media block: %+v", meta.Message)
	}
}

// Package ingest turns inbound Telegram webhook updates into persisted
// participant and activity records.
package ingest

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"
)

// maxTextPreview bounds the message text stored in the event meta blob.
const maxTextPreview = 500

// systemAccountIDs are Telegram service accounts whose messages carry no
// participant signal: 777000 relays channel posts, the other two are the
// anonymous group/channel bots.
var systemAccountIDs = map[int64]struct{}{
	777000:     {},
	136817688:  {},
	1087968824: {},
}

// ShouldSkipSender reports whether a message sender is out of scope for
// ingestion: missing, a bot, or a Telegram system account.
func ShouldSkipSender(from *models.User) bool {
	if from == nil || from.IsBot {
		return true
	}
	_, system := systemAccountIDs[from.ID]
	return system
}

// FullName joins a user's first and last name.
func FullName(from *models.User) string {
	return strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
}

// mediaType names the first media attachment found on a message, or "".
func mediaType(msg *models.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.VideoNote != nil:
		return "video_note"
	case msg.Animation != nil:
		return "animation"
	case msg.Document != nil:
		return "document"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Voice != nil:
		return "voice"
	case msg.Audio != nil:
		return "audio"
	}
	return ""
}

// countEntities tallies link and mention entities over both text and caption.
func countEntities(msg *models.Message) (links, mentions int) {
	count := func(entities []models.MessageEntity) {
		for _, e := range entities {
			switch e.Type {
			case models.MessageEntityTypeURL, models.MessageEntityTypeTextLink:
				links++
			case models.MessageEntityTypeMention, models.MessageEntityTypeTextMention:
				mentions++
			}
		}
	}
	count(msg.Entities)
	count(msg.CaptionEntities)
	return links, mentions
}

// messageMeta is the denormalized context blob stored alongside each
// message activity row.
type messageMeta struct {
	User struct {
		Username  string `json:"username,omitempty"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	} `json:"user"`
	Message struct {
		TextPreview string `json:"text_preview,omitempty"`
		HasMedia    bool   `json:"has_media"`
		MediaType   string `json:"media_type,omitempty"`
		IsTopic     bool   `json:"is_topic_message,omitempty"`
	} `json:"message"`
	Source struct {
		Type string `json:"type"`
		Bot  string `json:"bot,omitempty"`
	} `json:"source"`
}

// buildMessageMeta serializes the meta blob for a message event.
func buildMessageMeta(msg *models.Message, media string, botName string) string {
	var meta messageMeta
	meta.User.Username = msg.From.Username
	meta.User.FirstName = msg.From.FirstName
	meta.User.LastName = msg.From.LastName

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	meta.Message.TextPreview = truncatePreview(text)
	meta.Message.HasMedia = media != ""
	meta.Message.MediaType = media
	meta.Message.IsTopic = msg.IsTopicMessage

	meta.Source.Type = "webhook"
	meta.Source.Bot = botName

	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// truncatePreview caps text at maxTextPreview bytes, backing up to a rune
// boundary so the preview never ends in a split UTF-8 sequence.
func truncatePreview(text string) string {
	if len(text) <= maxTextPreview {
		return text
	}
	cut := maxTextPreview
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// membershipMeta is the context blob stored alongside join/leave rows.
type membershipMeta struct {
	User struct {
		Username string `json:"username,omitempty"`
	} `json:"user"`
	Source struct {
		Type string `json:"type"`
		Bot  string `json:"bot,omitempty"`
	} `json:"source"`
}

func buildMembershipMeta(username, botName string) string {
	var meta membershipMeta
	meta.User.Username = username
	meta.Source.Type = "webhook"
	meta.Source.Bot = botName

	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

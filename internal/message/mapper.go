package message

import (
	"github.com/memohai/wagate/internal/mediatype"
	"github.com/memohai/wagate/internal/session"
)

// FromSession maps a gateway message to its API representation. Media
// metadata is derived from the message type; the authoritative type is only
// known once the payload is downloaded.
func FromSession(msg session.Message) Message {
	out := Message{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		From:      msg.From,
		FromMe:    msg.FromMe,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		Type:      msg.Type,
		HasMedia:  msg.HasMedia,
	}
	if msg.FromMe {
		out.From = "Me"
	}
	if !msg.HasMedia {
		return out
	}
	mimeType := mediatype.TypeMimeType(msg.Type)
	if mimeType == "" {
		mimeType = mediatype.OctetStream
	}
	filename := "media_" + msg.ID
	if ext := mediatype.MimeTypeToExtension(mimeType); ext != "" {
		filename = msg.ID + ext
	}
	out.Media = &Media{MimeType: mimeType, Filename: filename}
	return out
}

// FromSessionMessages maps a slice of gateway messages.
func FromSessionMessages(msgs []session.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, FromSession(msg))
	}
	return out
}

func lastMessageFrom(msg *session.Message) *LastMessage {
	if msg == nil {
		return nil
	}
	return &LastMessage{
		ID:        msg.ID,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		FromMe:    msg.FromMe,
	}
}

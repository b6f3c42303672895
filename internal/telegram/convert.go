package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"telegram-forwarder/internal/domain"
)

// convertMessage переводит сообщение Telegram в доменное представление.
// Служебные и пустые сообщения пропускаются.
func convertMessage(m tg.MessageClass) (*domain.Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil, false
	}
	chat, ok := convertPeer(msg.PeerID)
	if !ok {
		return nil, false
	}

	out := &domain.Message{
		ID:   msg.ID,
		Chat: chat,
		Date: time.Unix(int64(msg.Date), 0).UTC(),
		Text: msg.Message,
		Out:  msg.Out,
	}
	if editDate, ok := msg.GetEditDate(); ok {
		out.EditDate = time.Unix(int64(editDate), 0).UTC()
	}

	// Без from_id отправителем считается сам чат (личные сообщения и каналы).
	if from, ok := msg.GetFromID(); ok {
		if sender, ok := convertPeer(from); ok {
			out.Sender = &sender
		}
	} else {
		sender := chat
		out.Sender = &sender
	}

	if media, ok := msg.GetMedia(); ok {
		out.Attachment = convertMedia(media)
	}
	return out, true
}

func convertPeer(p tg.PeerClass) (domain.Peer, bool) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return domain.Peer{Kind: domain.PeerUser, ID: v.UserID}, true
	case *tg.PeerChat:
		return domain.Peer{Kind: domain.PeerChat, ID: v.ChatID}, true
	case *tg.PeerChannel:
		return domain.Peer{Kind: domain.PeerChannel, ID: v.ChannelID}, true
	default:
		return domain.Peer{}, false
	}
}

// convertMedia возвращает вложение для фото и документов, остальные типы медиа игнорируются.
func convertMedia(m tg.MessageMediaClass) *domain.Attachment {
	switch v := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.GetPhoto()
		if !ok {
			return nil
		}
		return photoAttachment(photo)
	case *tg.MessageMediaDocument:
		doc, ok := v.GetDocument()
		if !ok {
			return nil
		}
		return documentAttachment(doc)
	default:
		return nil
	}
}

func photoAttachment(p tg.PhotoClass) *domain.Attachment {
	photo, ok := p.(*tg.Photo)
	if !ok {
		return nil
	}

	var (
		thumb string
		size  int
	)
	for _, s := range photo.Sizes {
		switch v := s.(type) {
		case *tg.PhotoSize:
			if v.Size >= size {
				thumb, size = v.Type, v.Size
			}
		case *tg.PhotoSizeProgressive:
			if n := len(v.Sizes); n > 0 && v.Sizes[n-1] >= size {
				thumb, size = v.Type, v.Sizes[n-1]
			}
		}
	}
	if thumb == "" {
		return nil
	}

	return &domain.Attachment{
		Kind:     domain.MediaKindPhoto,
		MimeType: "image/jpeg",
		Size:     int64(size),
		Location: &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		},
	}
}

func documentAttachment(d tg.DocumentClass) *domain.Attachment {
	doc, ok := d.(*tg.Document)
	if !ok {
		return nil
	}

	att := &domain.Attachment{
		Kind:     domain.MediaKindFile,
		MimeType: doc.MimeType,
		Size:     doc.Size,
		Location: &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		},
	}
	for _, attr := range doc.Attributes {
		if name, ok := attr.(*tg.DocumentAttributeFilename); ok {
			att.Name = name.FileName
		}
	}
	return att
}

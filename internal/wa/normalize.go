package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/ovidiomatos/waweb/internal/model"
)

// CallPlaceholderText is the body stored for native call notifications.
const CallPlaceholderText = "📞 Call"

// wrapperKind labels the content wrappers that get unwrapped exactly once
// each, which makes termination of the unwrap loop provable: every step
// consumes a distinct kind.
type wrapperKind int

const (
	wrapViewOnce wrapperKind = iota
	wrapEphemeral
	wrapEdit
	wrapDocumentCaption
)

// Normalize maps a raw provider envelope (plus an optionally pre-fetched
// media data URI) to exactly one canonical message. It is pure and never
// fails: unknown or malformed content degrades to an empty text message
// so the caller can still track the event by id and timestamp.
func Normalize(info types.MessageInfo, msg *waE2E.Message, mediaURL string) model.Message {
	chatJID := model.StripDevice(info.Chat.String())
	senderJID := model.StripDevice(info.Sender.String())

	key := model.MessageKey{
		RemoteJID: chatJID,
		FromMe:    info.IsFromMe,
		ID:        info.ID,
	}
	if model.IsGroupJID(chatJID) {
		key.Participant = senderJID
	}

	senderID := senderJID
	status := "read"
	if info.IsFromMe {
		senderID = "me"
		status = "sent"
	}

	msgType, text, buttons := classify(unwrap(msg))

	return model.Message{
		ID:        info.ID,
		Key:       key,
		Text:      text,
		SenderID:  senderID,
		Timestamp: info.Timestamp.UnixMilli(),
		Status:    status,
		Type:      msgType,
		PushName:  info.PushName,
		MediaURL:  mediaURL,
		Buttons:   buttons,
	}
}

// NormalizeCall produces the canonical record for a native call
// notification. Calls carry no content union, only a placeholder.
func NormalizeCall(meta types.BasicCallMeta) model.Message {
	from := model.StripDevice(meta.From.String())
	return model.Message{
		ID: meta.CallID,
		Key: model.MessageKey{
			RemoteJID: from,
			ID:        meta.CallID,
		},
		Text:      CallPlaceholderText,
		SenderID:  from,
		Timestamp: meta.Timestamp.UnixMilli(),
		Status:    "read",
		Type:      model.TypeCall,
	}
}

// unwrap peels view-once (V1/V2), ephemeral, protocol-edit and
// document-with-caption wrappers, each at most once. A nil element inside
// a wrapper simply terminates the loop and classifies as unknown.
func unwrap(msg *waE2E.Message) *waE2E.Message {
	seen := make(map[wrapperKind]bool)
	for msg != nil {
		switch {
		case !seen[wrapViewOnce] && msg.GetViewOnceMessage().GetMessage() != nil:
			seen[wrapViewOnce] = true
			msg = msg.GetViewOnceMessage().GetMessage()
		case !seen[wrapViewOnce] && msg.GetViewOnceMessageV2().GetMessage() != nil:
			seen[wrapViewOnce] = true
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case !seen[wrapEphemeral] && msg.GetEphemeralMessage().GetMessage() != nil:
			seen[wrapEphemeral] = true
			msg = msg.GetEphemeralMessage().GetMessage()
		case !seen[wrapEdit] && msg.GetProtocolMessage().GetEditedMessage() != nil:
			seen[wrapEdit] = true
			msg = msg.GetProtocolMessage().GetEditedMessage()
		case !seen[wrapDocumentCaption] && msg.GetDocumentWithCaptionMessage().GetMessage() != nil:
			seen[wrapDocumentCaption] = true
			msg = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
	}
	return msg
}

// classify resolves the content union against the closed type set.
// Anything unrecognized falls through to an empty text message.
func classify(msg *waE2E.Message) (model.MessageType, string, []model.Button) {
	switch {
	case msg == nil:
		return model.TypeText, "", nil
	case msg.GetConversation() != "":
		return model.TypeText, msg.GetConversation(), nil
	case msg.GetExtendedTextMessage() != nil:
		return model.TypeText, msg.GetExtendedTextMessage().GetText(), nil
	case msg.GetImageMessage() != nil:
		return model.TypeImage, msg.GetImageMessage().GetCaption(), nil
	case msg.GetVideoMessage() != nil:
		return model.TypeVideo, msg.GetVideoMessage().GetCaption(), nil
	case msg.GetAudioMessage() != nil:
		return model.TypeAudio, "", nil
	case msg.GetStickerMessage() != nil:
		return model.TypeSticker, "", nil
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		text := doc.GetCaption()
		if text == "" {
			text = doc.GetFileName()
		}
		return model.TypeDocument, text, nil
	case msg.GetReactionMessage() != nil:
		// The reaction emoji is kept as the message text.
		return model.TypeReaction, msg.GetReactionMessage().GetText(), nil
	case msg.GetButtonsMessage() != nil:
		bm := msg.GetButtonsMessage()
		var buttons []model.Button
		for _, b := range bm.GetButtons() {
			buttons = append(buttons, model.Button{
				ID:   b.GetButtonID(),
				Text: b.GetButtonText().GetDisplayText(),
			})
		}
		return model.TypeButtons, bm.GetContentText(), buttons
	case msg.GetTemplateMessage().GetHydratedTemplate() != nil:
		tpl := msg.GetTemplateMessage().GetHydratedTemplate()
		var buttons []model.Button
		for _, b := range tpl.GetHydratedButtons() {
			switch {
			case b.GetQuickReplyButton() != nil:
				buttons = append(buttons, model.Button{
					ID:   b.GetQuickReplyButton().GetID(),
					Text: b.GetQuickReplyButton().GetDisplayText(),
				})
			case b.GetUrlButton() != nil:
				buttons = append(buttons, model.Button{Text: b.GetUrlButton().GetDisplayText()})
			case b.GetCallButton() != nil:
				buttons = append(buttons, model.Button{Text: b.GetCallButton().GetDisplayText()})
			}
		}
		return model.TypeButtons, tpl.GetHydratedContentText(), buttons
	case msg.GetListMessage() != nil:
		lm := msg.GetListMessage()
		text := lm.GetDescription()
		if text == "" {
			text = lm.GetTitle()
		}
		return model.TypeList, text, nil
	// Interactive responses fall back to plain text carrying the
	// selection's display text.
	case msg.GetButtonsResponseMessage() != nil:
		return model.TypeText, msg.GetButtonsResponseMessage().GetSelectedDisplayText(), nil
	case msg.GetListResponseMessage() != nil:
		return model.TypeText, msg.GetListResponseMessage().GetTitle(), nil
	case msg.GetTemplateButtonReplyMessage() != nil:
		return model.TypeText, msg.GetTemplateButtonReplyMessage().GetSelectedDisplayText(), nil
	case msg.GetCall() != nil:
		return model.TypeCall, CallPlaceholderText, nil
	default:
		return model.TypeText, "", nil
	}
}

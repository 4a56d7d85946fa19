package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/ovidiomatos/waweb/internal/model"
)

func textMsg(s string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(s)}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		msg      *waE2E.Message
		wantType model.MessageType
		wantText string
	}{
		{"nil", nil, model.TypeText, ""},
		{"conversation", textMsg("hello"), model.TypeText, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")}}, model.TypeText, "linked"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("pic")}}, model.TypeImage, "pic"},
		{"image no caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, model.TypeImage, ""},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")}}, model.TypeVideo, "clip"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, model.TypeAudio, ""},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, model.TypeSticker, ""},
		{"document caption", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("report"), FileName: proto.String("r.pdf")}}, model.TypeDocument, "report"},
		{"document filename fallback", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("r.pdf")}}, model.TypeDocument, "r.pdf"},
		{"reaction emoji", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("👍")}}, model.TypeReaction, "👍"},
		{"list", &waE2E.Message{ListMessage: &waE2E.ListMessage{Title: proto.String("menu")}}, model.TypeList, "menu"},
		{"buttons response", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{Response: &waE2E.ButtonsResponseMessage_SelectedDisplayText{SelectedDisplayText: "Yes"}}}, model.TypeText, "Yes"},
		{"call stub", &waE2E.Message{Call: &waE2E.Call{}}, model.TypeCall, CallPlaceholderText},
		{"empty union", &waE2E.Message{}, model.TypeText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotText, _ := classify(tt.msg)
			if gotType != tt.wantType {
				t.Errorf("classify() type = %q, want %q", gotType, tt.wantType)
			}
			if gotText != tt.wantText {
				t.Errorf("classify() text = %q, want %q", gotText, tt.wantText)
			}
		})
	}
}

func TestClassifyButtons(t *testing.T) {
	msg := &waE2E.Message{ButtonsMessage: &waE2E.ButtonsMessage{
		ContentText: proto.String("pick one"),
		Buttons: []*waE2E.ButtonsMessage_Button{
			{ButtonID: proto.String("b1"), ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String("First")}},
			{ButtonID: proto.String("b2"), ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String("Second")}},
		},
	}}

	msgType, text, buttons := classify(msg)
	if msgType != model.TypeButtons {
		t.Fatalf("type = %q, want buttons", msgType)
	}
	if text != "pick one" {
		t.Errorf("text = %q, want pick one", text)
	}
	if len(buttons) != 2 {
		t.Fatalf("got %d buttons, want 2", len(buttons))
	}
	if buttons[0].ID != "b1" || buttons[0].Text != "First" {
		t.Errorf("buttons[0] = %+v", buttons[0])
	}
}

func TestUnwrapViewOnceImage(t *testing.T) {
	inner := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("hi")}}
	wrapped := &waE2E.Message{ViewOnceMessageV2: &waE2E.FutureProofMessage{Message: inner}}

	msgType, text, _ := classify(unwrap(wrapped))
	if msgType != model.TypeImage {
		t.Errorf("type = %q, want image", msgType)
	}
	if text != "hi" {
		t.Errorf("text = %q, want hi", text)
	}
}

func TestUnwrapEphemeralText(t *testing.T) {
	wrapped := &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{Message: textMsg("gone soon")}}

	got := unwrap(wrapped)
	if got.GetConversation() != "gone soon" {
		t.Errorf("conversation = %q, want gone soon", got.GetConversation())
	}
}

func TestUnwrapStacked(t *testing.T) {
	// Ephemeral wrapping view-once: both peel, one layer each.
	inner := &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}
	wrapped := &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{ViewOnceMessage: &waE2E.FutureProofMessage{Message: inner}},
	}}

	msgType, _, _ := classify(unwrap(wrapped))
	if msgType != model.TypeSticker {
		t.Errorf("type = %q, want sticker", msgType)
	}
}

func TestUnwrapRepeatedWrapperStops(t *testing.T) {
	// A view-once inside a view-once only peels once; the leftover wrapper
	// has no recognized union member and degrades to empty text.
	nested := &waE2E.Message{ViewOnceMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{ViewOnceMessage: &waE2E.FutureProofMessage{Message: textMsg("deep")}},
	}}

	msgType, text, _ := classify(unwrap(nested))
	if msgType != model.TypeText {
		t.Errorf("type = %q, want text", msgType)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestUnwrapEditedMessage(t *testing.T) {
	wrapped := &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		EditedMessage: textMsg("fixed typo"),
	}}

	got := unwrap(wrapped)
	if got.GetConversation() != "fixed typo" {
		t.Errorf("conversation = %q, want fixed typo", got.GetConversation())
	}
}

func testInfo(fromMe bool) types.MessageInfo {
	return types.MessageInfo{
		ID:        "MSG1",
		PushName:  "Alice",
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		MessageSource: types.MessageSource{
			Chat:     types.JID{User: "558591112222", Server: types.DefaultUserServer},
			Sender:   types.JID{User: "558591112222", Server: types.DefaultUserServer, Device: 3},
			IsFromMe: fromMe,
		},
	}
}

func TestNormalizeInbound(t *testing.T) {
	msg := Normalize(testInfo(false), textMsg("hello"), "")

	if msg.ID != "MSG1" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.Key.RemoteJID != "558591112222@s.whatsapp.net" {
		t.Errorf("RemoteJID = %q, device suffix should be stripped", msg.Key.RemoteJID)
	}
	if msg.SenderID != "558591112222@s.whatsapp.net" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
	if msg.Status != "read" {
		t.Errorf("Status = %q, want read", msg.Status)
	}
	if msg.Type != model.TypeText || msg.Text != "hello" {
		t.Errorf("type/text = %q/%q", msg.Type, msg.Text)
	}
	if msg.Timestamp != testInfo(false).Timestamp.UnixMilli() {
		t.Errorf("Timestamp = %d", msg.Timestamp)
	}
	if msg.PushName != "Alice" {
		t.Errorf("PushName = %q", msg.PushName)
	}
	if msg.Key.Participant != "" {
		t.Errorf("Participant = %q, want empty for direct chat", msg.Key.Participant)
	}
}

func TestNormalizeFromMe(t *testing.T) {
	msg := Normalize(testInfo(true), textMsg("mine"), "")

	if msg.SenderID != "me" {
		t.Errorf("SenderID = %q, want me", msg.SenderID)
	}
	if msg.Status != "sent" {
		t.Errorf("Status = %q, want sent", msg.Status)
	}
	if !msg.Key.FromMe {
		t.Error("Key.FromMe = false")
	}
}

func TestNormalizeGroupParticipant(t *testing.T) {
	info := testInfo(false)
	info.Chat = types.JID{User: "120363001122", Server: types.GroupServer}

	msg := Normalize(info, textMsg("in group"), "")
	if msg.Key.RemoteJID != "120363001122@g.us" {
		t.Errorf("RemoteJID = %q", msg.Key.RemoteJID)
	}
	if msg.Key.Participant != "558591112222@s.whatsapp.net" {
		t.Errorf("Participant = %q, want sender jid", msg.Key.Participant)
	}
}

func TestNormalizeViewOnceImageCaption(t *testing.T) {
	wrapped := &waE2E.Message{ViewOnceMessageV2: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("hi")}},
	}}

	msg := Normalize(testInfo(false), wrapped, "data:image/jpeg;base64,xxxx")
	if msg.Type != model.TypeImage {
		t.Errorf("Type = %q, want image", msg.Type)
	}
	if msg.Text != "hi" {
		t.Errorf("Text = %q, want hi", msg.Text)
	}
	if msg.MediaURL != "data:image/jpeg;base64,xxxx" {
		t.Errorf("MediaURL = %q", msg.MediaURL)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	msg := Normalize(testInfo(false), nil, "")
	if msg.Type != model.TypeText || msg.Text != "" {
		t.Errorf("malformed payload = %q/%q, want text/empty", msg.Type, msg.Text)
	}
	if msg.ID != "MSG1" {
		t.Errorf("ID = %q, id must survive malformed content", msg.ID)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	info := testInfo(false)
	wrapped := &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{Message: textMsg("same")}}

	a := Normalize(info, wrapped, "")
	b := Normalize(info, wrapped, "")
	if a.ID != b.ID || a.Text != b.Text || a.Type != b.Type || a.Timestamp != b.Timestamp {
		t.Errorf("normalize not stable: %+v vs %+v", a, b)
	}
}

func TestNormalizeCall(t *testing.T) {
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	msg := NormalizeCall(types.BasicCallMeta{
		From:      types.JID{User: "558591112222", Server: types.DefaultUserServer, Device: 2},
		CallID:    "CALL1",
		Timestamp: ts,
	})

	if msg.Type != model.TypeCall {
		t.Errorf("Type = %q, want call", msg.Type)
	}
	if msg.Text != CallPlaceholderText {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.ID != "CALL1" || msg.Key.ID != "CALL1" {
		t.Errorf("ID = %q/%q", msg.ID, msg.Key.ID)
	}
	if msg.SenderID != "558591112222@s.whatsapp.net" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
	if msg.Timestamp != ts.UnixMilli() {
		t.Errorf("Timestamp = %d", msg.Timestamp)
	}
}

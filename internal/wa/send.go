package wa

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Presence choreography delays around a text send. The remote client
// renders "typing..." off these, so the sequence is behavior, not polish.
const (
	composeAfterSubscribe = 200 * time.Millisecond
	pauseAfterCompose     = 500 * time.Millisecond
)

// textTransport is the slice of the whatsmeow client a text send needs.
// Narrow so tests can record the choreography ordering.
type textTransport interface {
	SubscribePresence(ctx context.Context, jid types.JID) error
	SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// SendText sends a text message, preceded by the subscribe → composing →
// paused presence choreography. Returns the server message ID.
func (a *Adapter) SendText(ctx context.Context, jid string, text string) (string, error) {
	return sendTextWith(ctx, a.client, jid, text, time.Sleep)
}

// sendTextWith is SendText with the transport and sleep injected.
// The choreography is strictly sequential per call; sends to different
// chats may interleave freely since no shared state is touched.
func sendTextWith(ctx context.Context, tr textTransport, jid string, text string, sleep func(time.Duration)) (string, error) {
	to, err := parseJID(jid)
	if err != nil {
		return "", err
	}

	// Presence failures are non-fatal: the send itself still proceeds.
	if err := tr.SubscribePresence(ctx, to); err == nil {
		sleep(composeAfterSubscribe)
		_ = tr.SendChatPresence(ctx, to, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		sleep(pauseAfterCompose)
		_ = tr.SendChatPresence(ctx, to, types.ChatPresencePaused, types.ChatPresenceMediaText)
	}

	resp, err := tr.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// SendChatPresence pushes a raw chat presence update (composing,
// recording, paused) requested by the UI.
func (a *Adapter) SendChatPresence(ctx context.Context, jid string, kind string) error {
	to, err := parseJID(jid)
	if err != nil {
		return err
	}
	state := types.ChatPresencePaused
	media := types.ChatPresenceMediaText
	switch kind {
	case "composing":
		state = types.ChatPresenceComposing
	case "recording":
		state = types.ChatPresenceComposing
		media = types.ChatPresenceMediaAudio
	}
	return a.client.SendChatPresence(ctx, to, state, media)
}

// SendMedia uploads the payload and sends it as an image, video, audio
// (optionally voice note) or document message. Returns the server
// message ID.
func (a *Adapter) SendMedia(ctx context.Context, jid string, data []byte, kind string, caption string, isVoice bool) (string, error) {
	to, err := parseJID(jid)
	if err != nil {
		return "", err
	}
	content, err := a.buildMediaMessage(ctx, data, kind, caption, isVoice)
	if err != nil {
		return "", err
	}
	resp, err := a.client.SendMessage(ctx, to, content)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	return resp.ID, nil
}

// PostStatus publishes a post to the status-broadcast stream: plain text
// or an uploaded image/video with caption.
func (a *Adapter) PostStatus(ctx context.Context, data []byte, kind string, caption string) (string, error) {
	var content *waE2E.Message
	if kind == "text" {
		content = &waE2E.Message{Conversation: proto.String(caption)}
	} else {
		var err error
		content, err = a.buildMediaMessage(ctx, data, kind, caption, false)
		if err != nil {
			return "", err
		}
	}
	resp, err := a.client.SendMessage(ctx, types.StatusBroadcastJID, content)
	if err != nil {
		return "", fmt.Errorf("post status: %w", err)
	}
	return resp.ID, nil
}

func (a *Adapter) buildMediaMessage(ctx context.Context, data []byte, kind string, caption string, isVoice bool) (*waE2E.Message, error) {
	switch kind {
	case "image":
		up, err := a.client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String("image/jpeg"),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}, nil
	case "video":
		up, err := a.client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("upload video: %w", err)
		}
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String("video/mp4"),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}, nil
	case "audio":
		up, err := a.client.Upload(ctx, data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("upload audio: %w", err)
		}
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String("audio/mp4"),
			PTT:           proto.Bool(isVoice),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}, nil
	default:
		up, err := a.client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("upload document: %w", err)
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String("application/octet-stream"),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}, nil
	}
}

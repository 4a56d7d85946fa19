package wa

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// mediaDownloader is the slice of the whatsmeow client the media side
// channel needs.
type mediaDownloader interface {
	DownloadAny(ctx context.Context, msg *waE2E.Message) ([]byte, error)
}

// MediaDataURI downloads the media payload of a message, if it carries
// one, and encodes it as a data URI for direct display in the UI.
// Returns "" (no error) for contentless messages. A download failure is
// an error; callers deliver the message anyway with an empty media field.
func MediaDataURI(ctx context.Context, dl mediaDownloader, msg *waE2E.Message) (string, error) {
	inner := unwrap(msg)
	mime := mediaMime(inner)
	if mime == "" {
		return "", nil
	}

	data, err := dl.DownloadAny(ctx, inner)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// mediaMime returns the mime type to advertise in the data URI, or ""
// when the message carries no downloadable media.
func mediaMime(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetImageMessage() != nil:
		return orDefault(msg.GetImageMessage().GetMimetype(), "image/jpeg")
	case msg.GetVideoMessage() != nil:
		return orDefault(msg.GetVideoMessage().GetMimetype(), "video/mp4")
	case msg.GetAudioMessage() != nil:
		return orDefault(msg.GetAudioMessage().GetMimetype(), "audio/ogg")
	case msg.GetStickerMessage() != nil:
		return orDefault(msg.GetStickerMessage().GetMimetype(), "image/webp")
	case msg.GetDocumentMessage() != nil:
		return orDefault(msg.GetDocumentMessage().GetMimetype(), "application/octet-stream")
	default:
		return ""
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

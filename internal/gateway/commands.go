package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/model"
)

const commandTimeout = 60 * time.Second

var dataURIPrefix = regexp.MustCompile(`^data:.*?;base64,`)

// decodeDataURI strips an optional data-URI header and base64-decodes
// the remainder, matching what browsers hand over from FileReader.
func decodeDataURI(s string) ([]byte, error) {
	raw := dataURIPrefix.ReplaceAllString(s, "")
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return data, nil
}

type sendMessageCmd struct {
	JID  string `json:"jid"`
	Text string `json:"text"`
}

type sendMediaCmd struct {
	JID        string `json:"jid"`
	FileBase64 string `json:"fileBase64"`
	Type       string `json:"type"`
	Caption    string `json:"caption"`
	IsVoice    bool   `json:"isVoice"`
}

type postStatusCmd struct {
	FileBase64 string `json:"fileBase64"`
	Type       string `json:"type"`
	Caption    string `json:"caption"`
}

type groupActionCmd struct {
	JID          string   `json:"jid"`
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
}

type privacyCmd struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// dispatch routes one client frame. Command handlers run in their own
// goroutine so a slow provider call never blocks the read pump; failures
// go back to the requesting client only.
func (g *Gateway) dispatch(c *Client, env Envelope) {
	switch env.Event {
	case "call_user", "answer_call", "reject_call", "ice_candidate", "end_call":
		g.relayCall(c, env)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := g.runCommand(ctx, c, env); err != nil {
			g.logger.Warn("command failed",
				zap.String("command", env.Event),
				zap.String("client_id", c.id),
				zap.Error(err))
			g.hub.SendTo(c.id, "error", fmt.Sprintf("%s failed: %v", env.Event, err))
		}
	}()
}

func (g *Gateway) runCommand(ctx context.Context, c *Client, env Envelope) error {
	switch env.Event {
	case "send_message":
		var cmd sendMessageCmd
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		id, err := g.provider.SendText(ctx, cmd.JID, cmd.Text)
		if err != nil {
			return err
		}
		g.hub.SendTo(c.id, "message_sent", map[string]any{
			"jid":     cmd.JID,
			"message": map[string]string{"id": id},
		})
		return nil

	case "send_presence":
		var cmd struct {
			JID      string `json:"jid"`
			Presence string `json:"presence"`
		}
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		return g.provider.SendChatPresence(ctx, cmd.JID, cmd.Presence)

	case "send_media":
		var cmd sendMediaCmd
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		data, err := decodeDataURI(cmd.FileBase64)
		if err != nil {
			return err
		}
		_, err = g.provider.SendMedia(ctx, cmd.JID, data, cmd.Type, cmd.Caption, cmd.IsVoice)
		return err

	case "post_status":
		var cmd postStatusCmd
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		var data []byte
		if cmd.Type != "text" {
			var err error
			if data, err = decodeDataURI(cmd.FileBase64); err != nil {
				return err
			}
		}
		_, err := g.provider.PostStatus(ctx, data, cmd.Type, cmd.Caption)
		return err

	case "fetch_messages":
		var jid string
		if err := json.Unmarshal(env.Data, &jid); err != nil {
			return err
		}
		return g.fetchMessages(ctx, c, jid)

	case "get_profile_pic":
		var jid string
		if err := json.Unmarshal(env.Data, &jid); err != nil {
			return err
		}
		// A missing picture is a valid answer, not an error.
		url, err := g.provider.ProfilePictureURL(ctx, jid)
		payload := map[string]any{"jid": jid}
		if err != nil || url == "" {
			payload["url"] = nil
		} else {
			payload["url"] = url
		}
		g.hub.SendTo(c.id, "profile_pic", payload)
		return nil

	case "request_pairing_code":
		var phone string
		if err := json.Unmarshal(env.Data, &phone); err != nil {
			return err
		}
		code, err := g.provider.PairPhone(ctx, phone)
		if err != nil {
			return fmt.Errorf("could not request pairing code: %w", err)
		}
		// The machine owns the artifact; publishing goes through it so
		// late joiners replay the same code.
		return g.machine.SetPairingCode(code)

	case "check_number":
		var phone string
		if err := json.Unmarshal(env.Data, &phone); err != nil {
			return err
		}
		result, err := g.provider.CheckNumber(ctx, phone)
		if err != nil {
			g.hub.SendTo(c.id, "number_status", map[string]any{"exists": false, "jid": phone})
			return nil
		}
		g.hub.SendTo(c.id, "number_status", result)
		return nil

	case "get_group_info":
		var jid string
		if err := json.Unmarshal(env.Data, &jid); err != nil {
			return err
		}
		meta, err := g.provider.GetGroupInfo(ctx, jid)
		if err != nil {
			return err
		}
		g.hub.SendTo(c.id, "group_info", meta)
		return nil

	case "group_action":
		var cmd groupActionCmd
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		if err := g.provider.GroupAction(ctx, cmd.JID, cmd.Action, cmd.Participants); err != nil {
			return err
		}
		g.hub.Broadcast("group_participants_update", map[string]any{
			"id":           cmd.JID,
			"action":       cmd.Action,
			"participants": cmd.Participants,
		})
		return nil

	case "update_profile_name":
		var name string
		if err := json.Unmarshal(env.Data, &name); err != nil {
			return err
		}
		if err := g.provider.UpdateProfileName(ctx, name); err != nil {
			return err
		}
		g.hub.SendTo(c.id, "profile_updated", map[string]string{"name": name})
		return nil

	case "update_profile_status":
		var statusText string
		if err := json.Unmarshal(env.Data, &statusText); err != nil {
			return err
		}
		if err := g.provider.UpdateProfileStatus(ctx, statusText); err != nil {
			return err
		}
		g.hub.SendTo(c.id, "profile_updated", map[string]string{"status": statusText})
		return nil

	case "update_profile_pic":
		var fileBase64 string
		if err := json.Unmarshal(env.Data, &fileBase64); err != nil {
			return err
		}
		photo, err := decodeDataURI(fileBase64)
		if err != nil {
			return err
		}
		url, err := g.provider.UpdateProfilePicture(ctx, photo)
		if err != nil {
			return err
		}
		selfID := ""
		if user := g.provider.SelfUser(); user != nil {
			selfID = user.ID
		}
		g.hub.SendTo(c.id, "profile_pic", map[string]any{"jid": selfID, "url": url})
		return nil

	case "get_privacy_settings":
		settings, err := g.provider.PrivacySettings(ctx)
		if err != nil {
			return err
		}
		g.hub.SendTo(c.id, "privacy_settings", settings)
		return nil

	case "update_privacy_setting":
		var cmd privacyCmd
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return err
		}
		settings, err := g.provider.UpdatePrivacySetting(ctx, cmd.Type, cmd.Value)
		if err != nil {
			return err
		}
		g.hub.SendTo(c.id, "privacy_settings", settings)
		return nil

	case "get_blocklist":
		blocklist, err := g.provider.Blocklist(ctx)
		if err != nil {
			return err
		}
		g.hub.SendTo(c.id, "blocklist", blocklist)
		return nil

	default:
		g.logger.Warn("unknown command", zap.String("command", env.Event), zap.String("client_id", c.id))
		return nil
	}
}

// fetchMessages replays the newest page of a conversation to the
// requesting client and marks it read upstream.
func (g *Gateway) fetchMessages(ctx context.Context, c *Client, jid string) error {
	rows, err := g.db.ListMessages(jid, 0, 50)
	if err != nil {
		return err
	}

	// Rows come newest-first from the store; the wire wants ascending.
	wire := make([]model.Message, 0, len(rows))
	var newestInboundID, newestSender string
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		wire = append(wire, toWireMessage(row))
		if !row.FromMe {
			newestInboundID = row.MsgID
			newestSender = row.SenderJID
		}
	}

	g.hub.SendTo(c.id, "messages", map[string]any{"jid": jid, "messages": wire})

	if newestInboundID != "" {
		if err := g.provider.MarkRead(ctx, jid, newestSender, []string{newestInboundID}); err != nil {
			g.logger.Warn("mark read failed", zap.String("chat", jid), zap.Error(err))
		}
	}
	return nil
}

package wa

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/appstate"
	"go.mau.fi/whatsmeow/types"

	"github.com/ovidiomatos/waweb/internal/model"
)

// GetGroupInfo fetches group metadata on demand. The result is attached
// to the owning chat and must be re-fetched after any group action.
func (a *Adapter) GetGroupInfo(ctx context.Context, jid string) (*model.GroupMetadata, error) {
	gjid, err := parseJID(jid)
	if err != nil {
		return nil, err
	}
	info, err := a.client.GetGroupInfo(ctx, gjid)
	if err != nil {
		return nil, fmt.Errorf("get group info: %w", err)
	}

	meta := &model.GroupMetadata{
		ID:          info.JID.String(),
		Subject:     info.Name,
		Owner:       model.StripDevice(info.OwnerJID.String()),
		Creation:    info.GroupCreated.Unix(),
		Description: info.Topic,
	}
	for _, p := range info.Participants {
		gp := model.GroupParticipant{ID: model.StripDevice(p.JID.String())}
		switch {
		case p.IsSuperAdmin:
			gp.Admin = "superadmin"
		case p.IsAdmin:
			gp.Admin = "admin"
		}
		meta.Participants = append(meta.Participants, gp)
	}
	return meta, nil
}

// GroupAction applies a participant change (add, remove, promote,
// demote) to a group.
func (a *Adapter) GroupAction(ctx context.Context, jid string, action string, participants []string) error {
	gjid, err := parseJID(jid)
	if err != nil {
		return err
	}

	var change whatsmeow.ParticipantChange
	switch action {
	case "add":
		change = whatsmeow.ParticipantChangeAdd
	case "remove":
		change = whatsmeow.ParticipantChangeRemove
	case "promote":
		change = whatsmeow.ParticipantChangePromote
	case "demote":
		change = whatsmeow.ParticipantChangeDemote
	default:
		return fmt.Errorf("unknown group action %q", action)
	}

	jids := make([]types.JID, 0, len(participants))
	for _, p := range participants {
		pj, err := parseJID(p)
		if err != nil {
			return err
		}
		jids = append(jids, pj)
	}

	if _, err := a.client.UpdateGroupParticipants(ctx, gjid, jids, change); err != nil {
		return fmt.Errorf("group %s: %w", action, err)
	}
	return nil
}

// ProfilePictureURL resolves a full-size avatar URL for a chat or user.
// Returns "" without error when the target has no picture or hides it.
func (a *Adapter) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	target, err := parseJID(jid)
	if err != nil {
		return "", err
	}
	info, err := a.client.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{})
	if err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// UpdateProfileName changes the session owner's push name via app state.
func (a *Adapter) UpdateProfileName(ctx context.Context, name string) error {
	if err := a.client.SendAppState(ctx, appstate.BuildSettingPushName(name)); err != nil {
		return fmt.Errorf("update profile name: %w", err)
	}
	return nil
}

// UpdateProfileStatus changes the session owner's about text.
func (a *Adapter) UpdateProfileStatus(ctx context.Context, status string) error {
	if err := a.client.SetStatusMessage(ctx, status); err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	return nil
}

// UpdateProfilePicture replaces the session owner's avatar and returns
// the freshly resolved URL.
func (a *Adapter) UpdateProfilePicture(ctx context.Context, photo []byte) (string, error) {
	if _, err := a.client.SetGroupPhoto(ctx, types.EmptyJID, photo); err != nil {
		return "", fmt.Errorf("update profile picture: %w", err)
	}
	self := a.client.Store.ID
	if self == nil {
		return "", nil
	}
	url, err := a.ProfilePictureURL(ctx, self.ToNonAD().String())
	if err != nil {
		return "", nil // picture was set; URL resolution is best-effort
	}
	return url, nil
}

// privacyTypes maps the wire setting names to provider setting types.
var privacyTypes = map[string]types.PrivacySettingType{
	"last":         types.PrivacySettingTypeLastSeen,
	"online":       types.PrivacySettingTypeOnline,
	"photo":        types.PrivacySettingTypeProfile,
	"status":       types.PrivacySettingTypeStatus,
	"readreceipts": types.PrivacySettingTypeReadReceipts,
	"groupadd":     types.PrivacySettingTypeGroupAdd,
}

// PrivacySettings fetches the current privacy settings keyed by the wire
// setting names.
func (a *Adapter) PrivacySettings(ctx context.Context) (map[string]string, error) {
	settings, err := a.client.TryFetchPrivacySettings(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch privacy settings: %w", err)
	}
	if settings == nil {
		return nil, fmt.Errorf("privacy settings not available")
	}
	return map[string]string{
		"last":         string(settings.LastSeen),
		"online":       string(settings.Online),
		"photo":        string(settings.Profile),
		"status":       string(settings.Status),
		"readreceipts": string(settings.ReadReceipts),
		"groupadd":     string(settings.GroupAdd),
	}, nil
}

// UpdatePrivacySetting changes one privacy setting and returns the
// refreshed settings map.
func (a *Adapter) UpdatePrivacySetting(ctx context.Context, settingType string, value string) (map[string]string, error) {
	pt, ok := privacyTypes[settingType]
	if !ok {
		return nil, fmt.Errorf("unknown privacy setting %q", settingType)
	}
	if _, err := a.client.SetPrivacySetting(ctx, pt, types.PrivacySetting(value)); err != nil {
		return nil, fmt.Errorf("set privacy %s: %w", settingType, err)
	}
	return a.PrivacySettings(ctx)
}

// Blocklist returns the JIDs the session owner has blocked.
func (a *Adapter) Blocklist(ctx context.Context) ([]string, error) {
	bl, err := a.client.GetBlocklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blocklist: %w", err)
	}
	var jids []string
	if bl != nil {
		for _, j := range bl.JIDs {
			jids = append(jids, j.String())
		}
	}
	return jids, nil
}

// NumberStatus is the result of a registered-number lookup.
type NumberStatus struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

// CheckNumber looks up whether a phone number is registered.
func (a *Adapter) CheckNumber(ctx context.Context, phone string) (*NumberStatus, error) {
	digits := digitsOnly(phone)
	if digits == "" {
		return nil, fmt.Errorf("phone number %q has no digits", phone)
	}
	infos, err := a.client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return nil, fmt.Errorf("check number: %w", err)
	}
	if len(infos) == 0 {
		return &NumberStatus{Exists: false, JID: phone}, nil
	}
	return &NumberStatus{Exists: infos[0].IsIn, JID: infos[0].JID.String()}, nil
}

// MarkRead sends read receipts for the given messages in a chat.
func (a *Adapter) MarkRead(ctx context.Context, chatJID string, senderJID string, msgIDs []string) error {
	chat, err := parseJID(chatJID)
	if err != nil {
		return err
	}
	sender := chat
	if senderJID != "" {
		if sender, err = parseJID(senderJID); err != nil {
			return err
		}
	}
	ids := make([]types.MessageID, 0, len(msgIDs))
	for _, id := range msgIDs {
		ids = append(ids, types.MessageID(id))
	}
	return a.client.MarkRead(ctx, ids, time.Now(), chat, sender)
}

package daemon

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/gateway"
	"github.com/ovidiomatos/waweb/internal/lock"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/status"
	"github.com/ovidiomatos/waweb/internal/store"
	"github.com/ovidiomatos/waweb/internal/wa"
)

type stubProvider struct{}

func (stubProvider) SelfUser() *model.User { return nil }
func (stubProvider) PairPhone(ctx context.Context, phone string) (string, error) {
	return "", nil
}
func (stubProvider) CheckNumber(ctx context.Context, phone string) (*wa.NumberStatus, error) {
	return nil, nil
}
func (stubProvider) SendText(ctx context.Context, jid string, text string) (string, error) {
	return "", nil
}
func (stubProvider) SendChatPresence(ctx context.Context, jid string, kind string) error { return nil }
func (stubProvider) SendMedia(ctx context.Context, jid string, data []byte, kind string, caption string, isVoice bool) (string, error) {
	return "", nil
}
func (stubProvider) PostStatus(ctx context.Context, data []byte, kind string, caption string) (string, error) {
	return "", nil
}
func (stubProvider) GetGroupInfo(ctx context.Context, jid string) (*model.GroupMetadata, error) {
	return nil, nil
}
func (stubProvider) GroupAction(ctx context.Context, jid string, action string, participants []string) error {
	return nil
}
func (stubProvider) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	return "", nil
}
func (stubProvider) UpdateProfileName(ctx context.Context, name string) error   { return nil }
func (stubProvider) UpdateProfileStatus(ctx context.Context, text string) error { return nil }
func (stubProvider) UpdateProfilePicture(ctx context.Context, photo []byte) (string, error) {
	return "", nil
}
func (stubProvider) PrivacySettings(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
func (stubProvider) UpdatePrivacySetting(ctx context.Context, settingType string, value string) (map[string]string, error) {
	return nil, nil
}
func (stubProvider) Blocklist(ctx context.Context) ([]string, error) { return nil, nil }
func (stubProvider) MarkRead(ctx context.Context, chatJID string, senderJID string, msgIDs []string) error {
	return nil
}

func TestServerLifecycle(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "waweb-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	sessionDir := filepath.Join(tmpDir, "test")
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(sessionDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(sessionDir, "waweb.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	hub := gateway.NewHub(logger)
	gw := gateway.New(hub, b, db, stubProvider{}, machine, logger)
	gw.Run(t.Context())
	defer gw.Stop()

	srv := NewServer(Params{ListenAddr: "127.0.0.1:0"}, gw, logger)
	go func() {
		if err := srv.Start(); err != nil {
			t.Errorf("server error: %v", err)
		}
	}()
	defer srv.Stop(context.Background())

	// Wait for the listener to come up.
	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if addr = srv.Addr(); addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server never bound a listener")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	// Second lock acquisition must fail while the daemon holds it.
	if _, err := lock.Acquire(sessionDir); err == nil {
		t.Error("second lock acquisition succeeded, want held error")
	}
}

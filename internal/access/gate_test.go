package access

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescdn/internal/auth"
	"filescdn/internal/model"
)

var (
	anonymous = auth.NewSession(nil)
	alice     = auth.NewSession(&model.User{ID: "alice", Roles: []string{"admin"}})
)

func TestNewGate_PublicAndProtected(t *testing.T) {
	tests := []struct {
		name     string
		cfg      GateConfig
		wantErr  bool
		wantMode Mode
	}{
		{name: "open", cfg: GateConfig{}, wantMode: ModeOpen},
		{name: "public", cfg: GateConfig{Public: true}, wantMode: ModePublic},
		{name: "protected fixed", cfg: GateConfig{Protected: Fixed[*DownloadContext](true)}, wantMode: ModeProtected},
		{name: "protected false is open", cfg: GateConfig{Protected: Fixed[*DownloadContext](false)}, wantMode: ModeOpen},
		{name: "public with protected false", cfg: GateConfig{Public: true, Protected: Fixed[*DownloadContext](false)}, wantMode: ModePublic},
		{name: "public and protected", cfg: GateConfig{Public: true, Protected: Fixed[*DownloadContext](true)}, wantErr: true},
		{
			name:    "public and custom protected",
			cfg:     GateConfig{Public: true, Protected: CustomBool(func(*DownloadContext) bool { return true })},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGate(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPublicAndProtected)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, g.Mode())
		})
	}
}

func TestGate_AuthorizeDownload(t *testing.T) {
	file := &model.FileRecord{ID: "f1", UserID: "alice"}

	ownerOnly := Custom(func(c *DownloadContext) Verdict {
		if c.UserID() == c.File.UserID {
			return Allow()
		}
		return Deny()
	})
	teapot := Custom(func(*DownloadContext) Verdict { return DenyStatus(http.StatusTeapot) })

	tests := []struct {
		name       string
		cfg        GateConfig
		session    *auth.Session
		wantAllow  bool
		wantStatus int
	}{
		{name: "open allows anonymous", cfg: GateConfig{}, session: anonymous, wantAllow: true},
		{name: "public allows anonymous", cfg: GateConfig{Public: true}, session: anonymous, wantAllow: true},
		{name: "protected denies anonymous", cfg: GateConfig{Protected: Fixed[*DownloadContext](true)}, session: anonymous, wantStatus: http.StatusUnauthorized},
		{name: "protected denies nil session", cfg: GateConfig{Protected: Fixed[*DownloadContext](true)}, session: nil, wantStatus: http.StatusUnauthorized},
		{name: "protected allows user", cfg: GateConfig{Protected: Fixed[*DownloadContext](true)}, session: alice, wantAllow: true},
		{name: "custom allows owner", cfg: GateConfig{Protected: ownerOnly}, session: alice, wantAllow: true},
		{name: "custom denies other with 401", cfg: GateConfig{Protected: ownerOnly}, session: anonymous, wantStatus: http.StatusUnauthorized},
		{name: "custom status code", cfg: GateConfig{Protected: teapot}, session: alice, wantStatus: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGate(tt.cfg)
			require.NoError(t, err)

			v := g.AuthorizeDownload(&DownloadContext{Session: tt.session, File: file, Version: model.OriginalVersion})
			assert.Equal(t, tt.wantAllow, v.Allow)
			if !tt.wantAllow {
				assert.Equal(t, tt.wantStatus, v.Status)
			}
		})
	}
}

func TestGate_AuthorizeUpload(t *testing.T) {
	g, err := NewGate(GateConfig{
		BeforeUpload: Custom(func(c *UploadContext) Verdict {
			if !c.Session.Authenticated() {
				return DenyReason("login required")
			}
			if c.File.Size > 100 {
				return Deny()
			}
			return Allow()
		}),
	})
	require.NoError(t, err)

	v := g.AuthorizeUpload(&UploadContext{Session: anonymous, File: &model.FileRecord{}})
	assert.False(t, v.Allow)
	assert.Equal(t, "login required", v.Reason)

	v = g.AuthorizeUpload(&UploadContext{Session: alice, File: &model.FileRecord{Size: 1000}})
	assert.False(t, v.Allow)
	assert.Empty(t, v.Reason)

	v = g.AuthorizeUpload(&UploadContext{Session: alice, File: &model.FileRecord{Size: 10}, ChunkID: 1})
	assert.True(t, v.Allow)

	open, err := NewGate(GateConfig{})
	require.NoError(t, err)
	assert.True(t, open.AuthorizeUpload(&UploadContext{}).Allow)
}

func TestGate_AuthorizeRemove(t *testing.T) {
	files := []model.FileRecord{{ID: "a", UserID: "alice"}, {ID: "b", UserID: "bob"}}

	tests := []struct {
		name    string
		policy  Policy[*RemoveContext]
		session *auth.Session
		want    bool
	}{
		{name: "disabled allows", session: anonymous, want: true},
		{name: "fixed false denies", policy: Fixed[*RemoveContext](false), session: alice, want: false},
		{name: "fixed true allows", policy: Fixed[*RemoveContext](true), session: anonymous, want: true},
		{
			name: "custom owner of all",
			policy: CustomBool(func(c *RemoveContext) bool {
				for _, f := range c.Files {
					if f.UserID != c.UserID() {
						return false
					}
				}
				return true
			}),
			session: alice,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGate(GateConfig{BeforeRemove: tt.policy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.AuthorizeRemove(&RemoveContext{Session: tt.session, Files: files}))
		})
	}
}

func TestPolicy(t *testing.T) {
	var p Policy[int]
	assert.Equal(t, KindDisabled, p.Kind())
	assert.False(t, p.Enabled())
	assert.Equal(t, DenyStatus(http.StatusForbidden), p.Evaluate(0, DenyStatus(http.StatusForbidden)))

	assert.Equal(t, KindDisabled, Custom[int](nil).Kind())
	assert.Equal(t, KindDisabled, CustomBool[int](nil).Kind())
	assert.Equal(t, "custom", CustomBool(func(int) bool { return true }).Kind().String())

	assert.Equal(t, http.StatusUnauthorized, Deny().StatusOr(http.StatusUnauthorized))
	assert.Equal(t, http.StatusNotFound, DenyStatus(http.StatusNotFound).StatusOr(http.StatusUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, DenyStatus(200).StatusOr(http.StatusUnauthorized))
}

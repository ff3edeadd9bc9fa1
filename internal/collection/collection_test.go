package collection

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescdn/internal/access"
	"filescdn/internal/config"
	"filescdn/internal/model"
)

func TestNew_Defaults(t *testing.T) {
	dir := t.TempDir()
	opts := Options{StoragePath: dir, IntegrityCheck: true}

	c, err := New(opts)
	require.NoError(t, err)

	got := c.Options()
	assert.Equal(t, DefaultCollectionName, got.CollectionName)
	assert.Equal(t, DefaultCacheControl, got.CacheControl)
	assert.Equal(t, DefaultDownloadRoute, got.DownloadRoute)
	assert.Equal(t, DefaultPermissions, got.Permissions)
	assert.Equal(t, DefaultParentDirPermissions, got.ParentDirPermissions)
	assert.Equal(t, DefaultOnBeforeUnloadMessage, got.OnBeforeUnloadMessage)
	assert.NotNil(t, got.Schema)
	assert.NotNil(t, got.NamingFunction)
	assert.Equal(t, "/cdn/storage/MeteorUploadFiles", c.BasePath())
	assert.Equal(t, access.ModeOpen, c.Gate().Mode())
	assert.True(t, c.Verifier().Enabled())
	assert.Equal(t, dir, c.Disk().Root())
}

func TestNew_Validation(t *testing.T) {
	abs := t.TempDir()

	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{
			name:  "public and protected",
			opts:  Options{StoragePath: abs, Public: true, DownloadRoute: "/files", Protected: access.Fixed[*access.DownloadContext](true)},
			field: "protected",
		},
		{
			name: "public and custom protected",
			opts: Options{StoragePath: abs, Public: true, DownloadRoute: "/files", Protected: access.CustomBool(func(*access.DownloadContext) bool {
				return true
			})},
			field: "protected",
		},
		{
			name:  "file permissions out of range",
			opts:  Options{StoragePath: abs, Permissions: 0o1644},
			field: "permissions",
		},
		{
			name:  "dir permissions out of range",
			opts:  Options{StoragePath: abs, ParentDirPermissions: os.ModePerm + 1},
			field: "parentDirPermissions",
		},
		{
			name:  "public with relative storage path",
			opts:  Options{StoragePath: "uploads", Public: true, DownloadRoute: "/files"},
			field: "storagePath",
		},
		{
			name:  "public with default route",
			opts:  Options{StoragePath: abs, Public: true, DownloadRoute: DefaultDownloadRoute},
			field: "downloadRoute",
		},
		{
			name:  "public without route",
			opts:  Options{StoragePath: abs, Public: true},
			field: "downloadRoute",
		},
		{
			name:  "route not root relative",
			opts:  Options{StoragePath: abs, DownloadRoute: "cdn"},
			field: "downloadRoute",
		},
		{
			name:  "bad collection name",
			opts:  Options{StoragePath: abs, CollectionName: "a/b"},
			field: "collectionName",
		},
		{
			name:  "negative throttle",
			opts:  Options{StoragePath: abs, Throttle: -1},
			field: "throttle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts)
			require.Error(t, err)
			assert.Nil(t, c)

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestNew_PublicAndProtectedUnwraps(t *testing.T) {
	_, err := New(Options{
		StoragePath:   t.TempDir(),
		Public:        true,
		DownloadRoute: "/files",
		Protected:     access.Fixed[*access.DownloadContext](true),
	})
	assert.ErrorIs(t, err, access.ErrPublicAndProtected)
}

func TestNew_PublicWithFixedFalseProtected(t *testing.T) {
	c, err := New(Options{
		StoragePath:   t.TempDir(),
		Public:        true,
		DownloadRoute: "/files/",
		Protected:     access.Fixed[*access.DownloadContext](false),
	})
	require.NoError(t, err)
	assert.Equal(t, access.ModePublic, c.Gate().Mode())
	assert.Equal(t, "/files/MeteorUploadFiles", c.BasePath())
}

func TestNew_CreatesStorageDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	_, err := New(Options{StoragePath: dir})
	require.NoError(t, err)

	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.CollectionConfig{
		StoragePath:          "/srv/uploads",
		CollectionName:       "Images",
		Throttle:             8000,
		Permissions:          0o600,
		ParentDirPermissions: -1,
		IntegrityCheck:       false,
		Strict:               true,
		Protected:            true,
		AllowClientCode:      false,
	})

	assert.Equal(t, "/srv/uploads", o.StoragePath)
	assert.Equal(t, "Images", o.CollectionName)
	assert.Equal(t, int64(8000), o.Throttle)
	assert.Equal(t, os.FileMode(0o600), o.Permissions)
	assert.NotZero(t, o.ParentDirPermissions&^os.ModePerm)
	assert.False(t, o.IntegrityCheck)
	assert.True(t, o.Strict)
	assert.False(t, o.AllowClientCode)
	assert.Equal(t, access.KindFixed, o.Protected.Kind())
	assert.True(t, o.Protected.Value())
}

func TestDefaultNaming(t *testing.T) {
	a, b := DefaultNaming(), DefaultNaming()
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}

func TestDefaultSchema(t *testing.T) {
	valid := &model.FileRecord{ID: "f1", Collection: "Images", Name: "a.txt", Path: "/tmp/f1.txt", Size: 10}
	assert.NoError(t, DefaultSchema(valid))

	missingName := &model.FileRecord{ID: "f1", Collection: "Images", Path: "/tmp/f1.txt"}
	assert.Error(t, DefaultSchema(missingName))

	badVersion := &model.FileRecord{
		ID: "f1", Collection: "Images", Name: "a.txt", Path: "/tmp/f1.txt",
		Versions: map[string]model.Version{model.OriginalVersion: {Size: 1}},
	}
	assert.Error(t, DefaultSchema(badVersion))
}

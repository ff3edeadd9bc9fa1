// Package collection holds the configuration of a files collection and builds the
// gate, disk store and integrity verifier it runs with.
package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"filescdn/internal/access"
	"filescdn/internal/config"
	"filescdn/internal/integrity"
	"filescdn/internal/model"
	"filescdn/internal/storage"
)

const (
	DefaultStoragePath           = "assets/app/uploads"
	DefaultCollectionName        = "MeteorUploadFiles"
	DefaultCacheControl          = "public, max-age=31536000, s-maxage=31536000"
	DefaultDownloadRoute         = "/cdn/storage"
	DefaultPermissions           = os.FileMode(0o644)
	DefaultParentDirPermissions  = os.FileMode(0o755)
	DefaultOnBeforeUnloadMessage = "Upload in a progress... Do you want to abort?"
)

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ConfigurationError is returned by New for settings that cannot be served.
// It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("collection config %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Options is the configuration surface of a collection.
// Zero string and permission values are replaced with defaults by New; booleans are
// taken as given, so start from DefaultOptions or FromConfig.
type Options struct {
	StoragePath    string
	CollectionName string
	CacheControl   string
	// Throttle caps download delivery in bits per second. Zero disables pacing.
	Throttle      int64
	DownloadRoute string

	// Schema validates a record before it is marked complete.
	Schema         func(*model.FileRecord) error
	NamingFunction func() string

	Permissions          os.FileMode
	ParentDirPermissions os.FileMode

	IntegrityCheck bool
	Strict         bool

	// DownloadCallback returning false answers 404.
	DownloadCallback func(*access.DownloadContext) bool
	Protected        access.Policy[*access.DownloadContext]
	Public           bool

	OnBeforeUpload access.Policy[*access.UploadContext]
	OnBeforeRemove access.Policy[*access.RemoveContext]
	OnAfterUpload  func(ctx context.Context, rec *model.FileRecord)

	OnBeforeUnloadMessage string
	AllowClientCode       bool
	Debug                 bool

	// InterceptDownload returning true owns the response.
	InterceptDownload func(c *fiber.Ctx, rec *model.FileRecord, version string) bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		StoragePath:           DefaultStoragePath,
		CollectionName:        DefaultCollectionName,
		CacheControl:          DefaultCacheControl,
		DownloadRoute:         DefaultDownloadRoute,
		Permissions:           DefaultPermissions,
		ParentDirPermissions:  DefaultParentDirPermissions,
		IntegrityCheck:        true,
		AllowClientCode:       true,
		OnBeforeUnloadMessage: DefaultOnBeforeUnloadMessage,
	}
}

// FromConfig maps the environment knobs onto Options. Hooks are left unset.
func FromConfig(c config.CollectionConfig) Options {
	o := DefaultOptions()
	o.StoragePath = c.StoragePath
	o.CollectionName = c.CollectionName
	o.CacheControl = c.CacheControl
	o.Throttle = c.Throttle
	o.DownloadRoute = c.DownloadRoute
	o.Permissions = permBits(c.Permissions)
	o.ParentDirPermissions = permBits(c.ParentDirPermissions)
	o.IntegrityCheck = c.IntegrityCheck
	o.Strict = c.Strict
	o.Public = c.Public
	o.AllowClientCode = c.AllowClientCode
	o.Debug = c.Debug
	o.OnBeforeUnloadMessage = c.OnBeforeUnloadMessage
	if c.Protected {
		o.Protected = access.Fixed[*access.DownloadContext](true)
	}
	return o
}

// permBits keeps unparsable values out of the valid range.
func permBits(v int) os.FileMode {
	if v < 0 {
		return os.ModePerm + 1
	}
	return os.FileMode(v)
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultSchema validates records with their struct tags.
func DefaultSchema(rec *model.FileRecord) error {
	return defaultValidator.Struct(rec)
}

// DefaultNaming returns a random id without dashes.
func DefaultNaming() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Collection is a validated collection ready to be served.
type Collection struct {
	opts     Options
	disk     *storage.Disk
	gate     *access.Gate
	verifier *integrity.Verifier
}

// New applies defaults, validates opts and prepares the storage directory.
func New(opts Options) (*Collection, error) {
	applyDefaults(&opts)
	if err := validate(opts); err != nil {
		return nil, err
	}

	gate, err := access.NewGate(access.GateConfig{
		Public:       opts.Public,
		Protected:    opts.Protected,
		BeforeUpload: opts.OnBeforeUpload,
		BeforeRemove: opts.OnBeforeRemove,
	})
	if err != nil {
		return nil, &ConfigurationError{Field: "protected", Reason: err.Error(), Err: err}
	}

	disk, err := storage.NewDisk(opts.StoragePath, opts.Permissions, opts.ParentDirPermissions)
	if err != nil {
		return nil, &ConfigurationError{Field: "storagePath", Reason: err.Error(), Err: err}
	}

	return &Collection{
		opts:     opts,
		disk:     disk,
		gate:     gate,
		verifier: integrity.NewVerifier(opts.IntegrityCheck),
	}, nil
}

func applyDefaults(o *Options) {
	if o.StoragePath == "" {
		o.StoragePath = DefaultStoragePath
	}
	if o.CollectionName == "" {
		o.CollectionName = DefaultCollectionName
	}
	if o.CacheControl == "" {
		o.CacheControl = DefaultCacheControl
	}
	if o.DownloadRoute == "" && !o.Public {
		o.DownloadRoute = DefaultDownloadRoute
	}
	o.DownloadRoute = strings.TrimRight(o.DownloadRoute, "/")
	if o.Schema == nil {
		o.Schema = DefaultSchema
	}
	if o.NamingFunction == nil {
		o.NamingFunction = DefaultNaming
	}
	if o.Permissions == 0 {
		o.Permissions = DefaultPermissions
	}
	if o.ParentDirPermissions == 0 {
		o.ParentDirPermissions = DefaultParentDirPermissions
	}
	if o.OnBeforeUnloadMessage == "" {
		o.OnBeforeUnloadMessage = DefaultOnBeforeUnloadMessage
	}
}

func validate(o Options) error {
	if o.Permissions&^os.ModePerm != 0 {
		return &ConfigurationError{Field: "permissions", Reason: fmt.Sprintf("%#o is outside 0..0777", uint32(o.Permissions))}
	}
	if o.ParentDirPermissions&^os.ModePerm != 0 {
		return &ConfigurationError{Field: "parentDirPermissions", Reason: fmt.Sprintf("%#o is outside 0..0777", uint32(o.ParentDirPermissions))}
	}
	if !collectionNameRe.MatchString(o.CollectionName) {
		return &ConfigurationError{Field: "collectionName", Reason: "only letters, digits, '_' and '-' are allowed"}
	}
	if o.Throttle < 0 {
		return &ConfigurationError{Field: "throttle", Reason: "must not be negative"}
	}

	if o.Public {
		if o.Protected.Enabled() && !(o.Protected.Kind() == access.KindFixed && !o.Protected.Value()) {
			return &ConfigurationError{Field: "protected", Reason: access.ErrPublicAndProtected.Error(), Err: access.ErrPublicAndProtected}
		}
		if !filepath.IsAbs(o.StoragePath) {
			return &ConfigurationError{Field: "storagePath", Reason: "must be absolute in public mode"}
		}
		if o.DownloadRoute == "" || o.DownloadRoute == DefaultDownloadRoute {
			return &ConfigurationError{Field: "downloadRoute", Reason: "must be set explicitly in public mode"}
		}
	}
	if !strings.HasPrefix(o.DownloadRoute, "/") {
		return &ConfigurationError{Field: "downloadRoute", Reason: "must be root relative"}
	}
	return nil
}

func (c *Collection) Name() string { return c.opts.CollectionName }

// Options returns the effective options, defaults applied.
func (c *Collection) Options() Options { return c.opts }

func (c *Collection) Disk() *storage.Disk { return c.disk }

func (c *Collection) Gate() *access.Gate { return c.gate }

func (c *Collection) Verifier() *integrity.Verifier { return c.verifier }

// BasePath is the route prefix downloads of this collection are served under.
func (c *Collection) BasePath() string {
	return c.opts.DownloadRoute + "/" + c.opts.CollectionName
}

// IsConfigurationError reports whether err came from collection validation.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

package access

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"filescdn/internal/auth"
	"filescdn/internal/model"
)

// ErrPublicAndProtected is returned when a collection is configured both public and protected.
var ErrPublicAndProtected = errors.New("collection cannot be public and protected at the same time")

// UploadContext is passed to the before-upload policy for every chunk.
type UploadContext struct {
	Session *auth.Session
	File    *model.FileRecord
	ChunkID int
	EOF     bool
}

func (c *UploadContext) User() *model.User { return c.Session.User() }
func (c *UploadContext) UserID() string    { return c.Session.ID() }

// DownloadContext is passed to the protected policy and the download callback.
type DownloadContext struct {
	Session *auth.Session
	Request *fiber.Ctx
	File    *model.FileRecord
	Version string
}

func (c *DownloadContext) User() *model.User { return c.Session.User() }
func (c *DownloadContext) UserID() string    { return c.Session.ID() }

// RemoveContext is passed to the before-remove policy. Files holds every record the
// remove query matched.
type RemoveContext struct {
	Session *auth.Session
	Files   []model.FileRecord
}

func (c *RemoveContext) User() *model.User { return c.Session.User() }
func (c *RemoveContext) UserID() string    { return c.Session.ID() }

// Mode is the serving mode of a collection.
type Mode int

const (
	ModeOpen Mode = iota
	ModePublic
	ModeProtected
)

// GateConfig holds the policies evaluated by a Gate.
type GateConfig struct {
	Public       bool
	Protected    Policy[*DownloadContext]
	BeforeUpload Policy[*UploadContext]
	BeforeRemove Policy[*RemoveContext]
}

// Gate is the single evaluation point for upload, download and remove decisions.
type Gate struct {
	mode         Mode
	protected    Policy[*DownloadContext]
	beforeUpload Policy[*UploadContext]
	beforeRemove Policy[*RemoveContext]
}

// NewGate validates the configuration and builds a gate.
// Protected as Fixed(false) counts as not protected.
func NewGate(cfg GateConfig) (*Gate, error) {
	protected := cfg.Protected.Enabled() && !(cfg.Protected.Kind() == KindFixed && !cfg.Protected.Value())
	if cfg.Public && protected {
		return nil, ErrPublicAndProtected
	}

	mode := ModeOpen
	switch {
	case cfg.Public:
		mode = ModePublic
	case protected:
		mode = ModeProtected
	}

	return &Gate{
		mode:         mode,
		protected:    cfg.Protected,
		beforeUpload: cfg.BeforeUpload,
		beforeRemove: cfg.BeforeRemove,
	}, nil
}

func (g *Gate) Mode() Mode { return g.mode }

// AuthorizeDownload decides whether a file may be served.
// Public mode performs no check. Protected(true) requires an authenticated user and
// answers 401 otherwise. A custom predicate decides alone; its denials default to 401.
func (g *Gate) AuthorizeDownload(c *DownloadContext) Verdict {
	if g.mode != ModeProtected {
		return Allow()
	}

	switch g.protected.Kind() {
	case KindFixed:
		if c.Session.Authenticated() {
			return Allow()
		}
		return DenyStatus(http.StatusUnauthorized)
	case KindCustom:
		v := g.protected.Evaluate(c, Allow())
		if !v.Allow {
			v.Status = v.StatusOr(http.StatusUnauthorized)
		}
		return v
	default:
		return Allow()
	}
}

// AuthorizeUpload evaluates the before-upload policy for one chunk.
func (g *Gate) AuthorizeUpload(c *UploadContext) Verdict {
	return g.beforeUpload.Evaluate(c, Allow())
}

// AuthorizeRemove evaluates the before-remove policy.
func (g *Gate) AuthorizeRemove(c *RemoveContext) bool {
	return g.beforeRemove.Evaluate(c, Allow()).Allow
}

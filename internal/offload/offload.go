// Package offload copies finished uploads to object storage and serves them from there.
package offload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"filescdn/internal/model"
	"filescdn/internal/repository"
	"filescdn/internal/storage"
)

// MetaKey is the version meta entry holding the object key of an offloaded version.
const MetaKey = "pipePath"

// Offloader keeps object storage in step with the file records of a collection.
// With a zero presign expiry downloads are proxied instead of redirected.
type Offloader struct {
	store  storage.ObjectStore
	repo   repository.FileRepository
	expiry time.Duration
	log    *slog.Logger

	wg sync.WaitGroup
}

func New(store storage.ObjectStore, repo repository.FileRepository, expiry time.Duration, log *slog.Logger) *Offloader {
	if log == nil {
		log = slog.Default()
	}
	return &Offloader{store: store, repo: repo, expiry: expiry, log: log.With("component", "offload")}
}

// ObjectKey is the key a version of rec is stored under.
func ObjectKey(rec *model.FileRecord, version string, v model.Version) string {
	name := rec.ID + "-" + version
	if v.Extension != "" {
		name += "." + v.Extension
	}
	return path.Join(rec.Collection, rec.ID, name)
}

// AfterUpload copies rec in the background. It is meant to be registered as an afterUpload listener.
func (o *Offloader) AfterUpload(ctx context.Context, rec model.FileRecord) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.Offload(context.WithoutCancel(ctx), &rec); err != nil {
			o.log.ErrorContext(ctx, "offload_failed", "file_id", rec.ID, "error", err.Error())
		}
	}()
}

// Offload uploads every version of rec that is not in object storage yet and records the keys.
func (o *Offloader) Offload(ctx context.Context, rec *model.FileRecord) error {
	versions := make(map[string]model.Version, len(rec.Versions))
	changed := false

	for name, v := range rec.Versions {
		if key, ok := v.Meta[MetaKey].(string); ok && key != "" {
			versions[name] = v
			continue
		}

		key := ObjectKey(rec, name, v)
		if err := o.put(ctx, key, v, rec.Name); err != nil {
			return fmt.Errorf("offload %s version %s: %w", rec.ID, name, err)
		}

		meta := make(map[string]any, len(v.Meta)+1)
		for k, val := range v.Meta {
			meta[k] = val
		}
		meta[MetaKey] = key
		v.Meta = meta
		versions[name] = v
		changed = true

		o.log.InfoContext(ctx, "version_offloaded", "file_id", rec.ID, "version", name, "key", key)
	}

	if !changed {
		return nil
	}
	rec.Versions = versions
	return o.repo.Update(ctx, rec.ID, repository.FilePatch{Versions: versions, UpdatedAt: time.Now().UTC()})
}

func (o *Offloader) put(ctx context.Context, key string, v model.Version, name string) error {
	f, err := os.Open(v.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = o.store.Put(ctx, key, f, storage.PutObjectOptions{
		Size:        v.Size,
		ContentType: v.Type,
		Metadata:    map[string]string{"original-filename": name},
	})
	return err
}

// AfterRemove deletes the objects of every offloaded version of rec.
func (o *Offloader) AfterRemove(ctx context.Context, rec model.FileRecord) {
	for name, v := range rec.Versions {
		key, ok := v.Meta[MetaKey].(string)
		if !ok || key == "" {
			continue
		}
		if err := o.store.Delete(ctx, key); err != nil {
			o.log.ErrorContext(ctx, "offload_delete_failed", "file_id", rec.ID, "version", name, "error", err.Error())
		}
	}
}

// Intercept serves offloaded versions from object storage. It reports false for versions
// still only on disk so the regular download path serves them.
func (o *Offloader) Intercept(c *fiber.Ctx, rec *model.FileRecord, version string) bool {
	v, ok := rec.Versions[version]
	if !ok {
		return false
	}
	key, ok := v.Meta[MetaKey].(string)
	if !ok || key == "" {
		return false
	}
	ctx := c.UserContext()

	if o.expiry > 0 {
		u, err := o.store.PresignGet(ctx, key, o.expiry)
		if err != nil {
			o.log.WarnContext(ctx, "offload_presign_failed", "file_id", rec.ID, "error", err.Error())
			return false
		}
		_ = c.Redirect(u, fiber.StatusFound)
		return true
	}

	body, info, err := o.store.Get(ctx, key)
	if err != nil {
		o.log.WarnContext(ctx, "offload_get_failed", "file_id", rec.ID, "error", err.Error())
		return false
	}
	ct := info.ContentType
	if ct == "" {
		ct = v.Type
	}
	if ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	c.Status(fiber.StatusOK)
	_ = c.SendStream(body, int(info.Size))
	return true
}

// Wait blocks until background copies finished or ctx is done.
func (o *Offloader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("offload still running"), ctx.Err())
	}
}

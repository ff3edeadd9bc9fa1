package handler

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"filescdn/internal/access"
	"filescdn/internal/http/middleware"
	"filescdn/internal/metrics"
	"filescdn/internal/model"
	"filescdn/internal/service"
)

// Download serves a version of a stored file with Range support.
//
// Routes:
//   - GET {base}/:id
//   - GET {base}/:id/:version/:name
//
// The access gate and the download callback run first, then the intercept hook,
// then the file is streamed from disk.
func Download(svc service.FileService, m *metrics.Files) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coll := svc.Collection()
		opts := coll.Options()
		id := c.Params("id")
		version := c.Params("version", model.OriginalVersion)

		rec, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		dctx := &access.DownloadContext{
			Session: middleware.SessionFromCtx(c),
			Request: c,
			File:    rec,
			Version: version,
		}
		if v := coll.Gate().AuthorizeDownload(dctx); !v.Allow {
			status := v.StatusOr(fiber.StatusUnauthorized)
			m.DownloadRejected(coll.Name(), strconv.Itoa(status))
			return writeDenied(c, status, v.Reason)
		}
		if opts.DownloadCallback != nil && !opts.DownloadCallback(dctx) {
			m.DownloadRejected(coll.Name(), "callback")
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
		}
		if !rec.IsComplete {
			m.DownloadRejected(coll.Name(), "incomplete")
			return writeError(c, fiber.StatusConflict, "UPLOAD_INCOMPLETE", "file upload is not complete")
		}

		if opts.InterceptDownload != nil && opts.InterceptDownload(c, rec, version) {
			return nil
		}

		v, ok := rec.Version(version)
		if !ok {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "version not found")
		}
		return serveVersion(c, svc, m, rec, v)
	}
}

// serveVersion streams v as a full (200) or partial (206) response.
func serveVersion(c *fiber.Ctx, svc service.FileService, m *metrics.Files, rec *model.FileRecord, v model.Version) error {
	coll := svc.Collection()
	opts := coll.Options()
	disk := coll.Disk()

	if !disk.Contains(v.Path) {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
	}
	f, st, err := disk.Open(v.Path)
	if err != nil {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
	}
	size := st.Size()

	c.Set(fiber.HeaderAcceptRanges, "bytes")

	header := c.Get(fiber.HeaderRange)
	if header == "" && opts.Strict {
		f.Close()
		return rangeNotSatisfiable(c, size)
	}

	status := fiber.StatusOK
	start, end := int64(0), size-1
	if header != "" {
		var ok bool
		start, end, ok = satisfiableRange(header, size)
		if !ok {
			f.Close()
			return rangeNotSatisfiable(c, size)
		}
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		status = fiber.StatusPartialContent
		c.Set(fiber.HeaderContentRange, "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
	}
	length := end - start + 1

	ct := v.Type
	if ct == "" {
		ct = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, ct)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(c.Query("download") == "true", downloadName(rec, v)))
	if opts.CacheControl != "" {
		c.Set(fiber.HeaderCacheControl, opts.CacheControl)
	}

	var body io.ReadCloser = readCloser{Reader: io.LimitReader(f, length), Closer: f}
	body = newThrottledReader(context.Background(), body, opts.Throttle)

	m.ServedBytes(coll.Name(), strconv.Itoa(status), length)
	return c.Status(status).SendStream(body, int(length))
}

// satisfiableRange resolves a single "bytes=" range against size, the end clamped to size-1.
// Multiple ranges are not served.
func satisfiableRange(header string, size int64) (start, end int64, ok bool) {
	header = strings.TrimSpace(header)
	if strings.Contains(header, ",") {
		return 0, 0, false
	}
	s, e, err := fasthttp.ParseByteRange([]byte(header), int(size))
	if err != nil || e < s {
		return 0, 0, false
	}
	return int64(s), int64(e), true
}

func rangeNotSatisfiable(c *fiber.Ctx, size int64) error {
	c.Set(fiber.HeaderContentRange, "bytes */"+strconv.FormatInt(size, 10))
	return writeError(c, fiber.StatusRequestedRangeNotSatisfiable, "RANGE_NOT_SATISFIABLE", "requested range not satisfiable")
}

// writeDenied answers a gate denial, carrying the policy reason when one was given.
func writeDenied(c *fiber.Ctx, status int, reason string) error {
	code := "ACCESS_DENIED"
	switch status {
	case fiber.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case fiber.StatusForbidden:
		code = "FORBIDDEN"
	}
	if reason == "" {
		reason = "access denied"
	}
	return writeError(c, status, code, reason)
}

// downloadName is the record name with the extension of the served version.
func downloadName(rec *model.FileRecord, v model.Version) string {
	name := rec.Name
	if v.Extension != "" && !strings.HasSuffix(name, "."+v.Extension) {
		if i := strings.LastIndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		name += "." + v.Extension
	}
	return name
}

func contentDisposition(attachment bool, name string) string {
	kind := "inline"
	if attachment {
		kind = "attachment"
	}
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return kind + `; filename="` + ascii + `"; filename*=UTF-8''` + url.PathEscape(name)
}

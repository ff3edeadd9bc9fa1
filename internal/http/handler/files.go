package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"filescdn/internal/access"
	"filescdn/internal/http/middleware"
	"filescdn/internal/model"
	"filescdn/internal/repository"
	"filescdn/internal/service"
)

// fileResponse is a record with its download link.
type fileResponse struct {
	*model.FileRecord
	Link string `json:"link"`
}

// ListFiles lists records of the collection with limit & offset.
// mine=true restricts the listing to the caller's uploads; protected collections always do.
func ListFiles(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		sess := middleware.SessionFromCtx(c)
		q := service.ListQuery{Limit: limit, Offset: offset}
		if svc.Collection().Gate().Mode() == access.ModeProtected || c.QueryBool("mine") {
			if !sess.Authenticated() {
				return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			}
			q.UserID = sess.ID()
		}

		res, err := svc.List(c.UserContext(), q)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetFile returns the metadata of a record. The download policy applies.
func GetFile(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		v := svc.Collection().Gate().AuthorizeDownload(&access.DownloadContext{
			Session: middleware.SessionFromCtx(c),
			Request: c,
			File:    rec,
			Version: model.OriginalVersion,
		})
		if !v.Allow {
			return writeDenied(c, v.StatusOr(fiber.StatusUnauthorized), v.Reason)
		}
		return c.JSON(fileResponse{FileRecord: rec, Link: svc.Link(rec, model.OriginalVersion)})
	}
}

// RemoveFile deletes a record and its stored versions.
// Disabled unless client removal is allowed; the before-remove policy decides per call.
func RemoveFile(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !svc.Collection().Options().AllowClientCode {
			return writeError(c, fiber.StatusForbidden, "CLIENT_REMOVE_DISABLED", "removal from clients is disabled")
		}

		n, err := svc.Remove(c.UserContext(), middleware.SessionFromCtx(c), repository.FileQuery{ID: c.Params("id")})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			case errors.Is(err, service.ErrForbidden):
				return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "removal denied")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"removed": n})
	}
}

// ClientConfig exposes the knobs an upload client needs.
func ClientConfig(svc service.FileService, maxChunkBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coll := svc.Collection()
		opts := coll.Options()
		return c.JSON(fiber.Map{
			"collection":            coll.Name(),
			"uploadRoute":           coll.BasePath() + "/__upload",
			"downloadRoute":         coll.BasePath(),
			"chunkSize":             maxChunkBytes,
			"allowClientCode":       opts.AllowClientCode,
			"integrityCheck":        opts.IntegrityCheck,
			"onbeforeunloadMessage": opts.OnBeforeUnloadMessage,
		})
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"filescdn/internal/http/middleware"
	"filescdn/internal/model"
	"filescdn/internal/service"
)

// chunkResponse is returned for every accepted chunk. File is set once the upload completed.
type chunkResponse struct {
	FileID     string            `json:"fileId"`
	ChunkID    int               `json:"chunkId"`
	Size       int64             `json:"size"`
	IsComplete bool              `json:"isComplete"`
	Link       string            `json:"link,omitempty"`
	File       *model.FileRecord `json:"file,omitempty"`
}

// UploadChunk accepts one chunk of a resumable upload (multipart/form-data).
//
// Form fields: fileId (empty on chunk 1 to get a generated id), chunkId, eof,
// name, type, size, checksum, meta (JSON object). The chunk bytes go in the "chunk" part.
func UploadChunk(svc service.FileService, maxChunkBytes int64, log *slog.Logger) fiber.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		chunkID, err := strconv.Atoi(c.FormValue("chunkId"))
		if err != nil || chunkID < 1 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CHUNK", "chunkId must be a positive integer")
		}
		eof := c.FormValue("eof") == "true" || c.FormValue("eof") == "1"

		var declared int64
		if s := c.FormValue("size"); s != "" {
			declared, err = strconv.ParseInt(s, 10, 64)
			if err != nil || declared < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_CHUNK", "invalid size")
			}
		}
		var meta map[string]any
		if s := c.FormValue("meta"); s != "" {
			if err := json.Unmarshal([]byte(s), &meta); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_CHUNK", "meta must be a JSON object")
			}
		}

		fh, err := c.FormFile("chunk")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "CHUNK_REQUIRED", "chunk is required")
		}
		if maxChunkBytes > 0 && fh.Size > maxChunkBytes {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE", "chunk exceeds the size limit")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "CHUNK_OPEN_ERROR", "cannot open chunk")
		}
		defer f.Close()

		rec, err := svc.HandleChunk(c.UserContext(), middleware.SessionFromCtx(c), service.ChunkRequest{
			FileID:  c.FormValue("fileId"),
			ChunkID: chunkID,
			EOF:     eof,
			Data:    f,
			File: model.FileDescriptor{
				Name:     c.FormValue("name"),
				Type:     c.FormValue("type"),
				Size:     declared,
				Checksum: c.FormValue("checksum"),
				Meta:     meta,
			},
		})
		if err != nil {
			return writeUploadError(c, log, err)
		}

		res := chunkResponse{FileID: rec.ID, ChunkID: chunkID, Size: rec.Size, IsComplete: rec.IsComplete}
		if rec.IsComplete {
			res.File = rec
			res.Link = svc.Link(rec, model.OriginalVersion)
			return c.Status(fiber.StatusCreated).JSON(res)
		}
		return c.JSON(res)
	}
}

// writeUploadError maps service failures onto the error envelope.
func writeUploadError(c *fiber.Ctx, log *slog.Logger, err error) error {
	if ue, ok := service.AsUploadError(err); ok {
		switch ue.Kind {
		case service.OutOfOrderChunk:
			return writeError(c, fiber.StatusConflict, "OUT_OF_ORDER_CHUNK", "chunk out of order, upload aborted")
		case service.IntegrityMismatch:
			return writeError(c, fiber.StatusUnprocessableEntity, "INTEGRITY_MISMATCH", "checksum mismatch, upload aborted")
		case service.AbortedByPolicy:
			status := ue.Status
			if status == 0 {
				status = fiber.StatusForbidden
			}
			msg := ue.Reason
			if msg == "" {
				msg = "upload aborted"
			}
			return writeError(c, status, "ABORTED_BY_POLICY", msg)
		}
	}

	switch {
	case errors.Is(err, service.ErrInvalidChunk):
		return writeError(c, fiber.StatusBadRequest, "INVALID_CHUNK", "invalid chunk")
	case errors.Is(err, service.ErrUnknownUpload):
		return writeError(c, fiber.StatusNotFound, "UNKNOWN_UPLOAD", "no upload in progress for this file")
	case errors.Is(err, service.ErrBusy):
		c.Set(fiber.HeaderRetryAfter, "1")
		return writeError(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", "too many chunks in flight")
	case errors.Is(err, service.ErrInvalidRecord):
		return writeError(c, fiber.StatusUnprocessableEntity, "INVALID_RECORD", "file record rejected")
	}

	log.ErrorContext(c.UserContext(), "upload_chunk_failed", "request_id", middleware.RequestIDFromCtx(c), "error", err.Error())
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// AbortUpload drops an upload in progress owned by the caller.
func AbortUpload(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := svc.Abort(c.UserContext(), middleware.SessionFromCtx(c), c.Params("id"))
		if err != nil {
			if errors.Is(err, service.ErrUnknownUpload) {
				return writeError(c, fiber.StatusNotFound, "UNKNOWN_UPLOAD", "no upload in progress for this file")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"filescdn/internal/http/middleware"
	"filescdn/internal/integrity"
	"filescdn/internal/model"
	"filescdn/internal/repository"
	repoMocks "filescdn/internal/repository/mocks"
	"filescdn/internal/service"
)

func TestUploadThenDownload(t *testing.T) {
	coll := newCollection(t, nil)
	repo := new(repoMocks.MockFileRepository)
	svc := service.NewFileService(coll, repo, service.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.SessionLocalKey, alice)
		return c.Next()
	})
	RegisterRoutes(app, nil, svc, RouteConfig{MaxChunkBytes: 1 << 20})

	first, second := []byte("hello "), []byte("range world")
	checksum := integrity.Sum(append(append([]byte{}, first...), second...))

	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("Update", mock.Anything, "up1", mock.Anything).Return(nil).Twice()

	post := func(fields map[string]string, data []byte) *http.Response {
		body, ct := chunkForm(t, fields, data)
		req := httptest.NewRequest(http.MethodPost, "/cdn/storage/Images/__upload", body)
		req.Header.Set("Content-Type", ct)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(map[string]string{
		"fileId": "up1", "chunkId": "1", "name": "hello.txt", "type": "text/plain",
		"size": "17", "checksum": checksum,
	}, first)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// not served while the upload is open
	repo.On("FindOne", mock.Anything, repository.FileQuery{ID: "up1", Collection: "Images"}).
		Return(&model.FileRecord{ID: "up1", Collection: "Images", IsComplete: false}, nil).Once()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/cdn/storage/Images/up1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = post(map[string]string{"fileId": "up1", "chunkId": "2", "eof": "true"}, second)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var done chunkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&done))
	require.NotNil(t, done.File)
	assert.Equal(t, int64(17), done.File.Size)
	assert.Equal(t, "/cdn/storage/Images/up1/original/hello.txt", done.Link)

	repo.On("FindOne", mock.Anything, repository.FileQuery{ID: "up1", Collection: "Images"}).Return(done.File, nil).Once()
	req := httptest.NewRequest(http.MethodGet, done.Link, nil)
	req.Header.Set("Range", "bytes=6-10")
	resp, err = app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 6-10/17", resp.Header.Get("Content-Range"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "range", string(body))
	repo.AssertExpectations(t)
}

// handlers_files.go - Background image and snapshot file handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/snapshot"
	"github.com/tactical-map/backend/internal/storage"
)

const (
	defaultFileListLimit = 50
	sniffLen             = 512
)

// SnapshotOptions controls how exported map snapshots are trimmed and kept.
type SnapshotOptions struct {
	Tolerance float64
	Padding   int
	// Retain is the number of snapshots kept; older ones are deleted. Zero keeps all.
	Retain int
}

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	files    storage.FileStore
	snapshot SnapshotOptions
}

// NewFileHandler creates a new file handler
func NewFileHandler(files storage.FileStore, opts SnapshotOptions) *FileHandlerImpl {
	return &FileHandlerImpl{files: files, snapshot: opts}
}

// HandleUploadFile stores an uploaded background image (multipart/form-data)
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	owner, err := requireIdentity(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	contentType, r, err := sniffImage(src)
	if err != nil {
		return err
	}

	info, err := h.files.Save(file.Filename, contentType, models.FileKindBackground, owner.UID, r)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	fmt.Printf("[Files] Stored background %s (%s, %d bytes)\n", info.ID, file.Filename, info.Size)
	return c.JSON(http.StatusCreated, info)
}

// sniffImage detects the content type of r and rejects anything that is not
// an image. The returned reader yields the full content.
func sniffImage(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, NewBadRequestError("failed to read upload", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, NewBadRequestError("file is not an image: "+contentType, nil)
	}
	return contentType, io.MultiReader(bytes.NewReader(head), r), nil
}

// imageError reports oversized images as 413 and anything else as a bad request.
func imageError(message string, err error) error {
	if errors.Is(err, snapshot.ErrTooManyPixels) {
		return FromError(err)
	}
	return NewBadRequestError(message, err)
}

// HandleListFiles returns the most recent files, optionally of one kind
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	kind := c.QueryParam("kind")
	if kind != "" && !models.ValidFileKind(kind) {
		return NewValidationError("kind")
	}
	limit := defaultFileListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.files.List(kind, limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	info, err := h.files.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDownloadFile streams a stored file
func (h *FileHandlerImpl) HandleDownloadFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.files.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	path, err := h.files.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	c.Response().Header().Set(echo.HeaderContentType, info.ContentType)
	c.Response().Header().Set("Cache-Control", "public, max-age=86400, immutable")
	if c.QueryParam("download") != "" {
		return c.Attachment(path, info.Name)
	}
	return c.File(path)
}

// HandleDeleteFile deletes a file uploaded by the caller
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	caller, err := requireIdentity(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	info, err := h.files.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	if info.Owner != caller.UID {
		return NewForbiddenError("only the uploader may delete this file")
	}
	if err := h.files.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleCreateSnapshot stores a PNG export of the map, cropped to its
// content unless crop=false is given.
func (h *FileHandlerImpl) HandleCreateSnapshot(c echo.Context) error {
	owner, err := requireIdentity(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	if c.QueryParam("crop") == "false" {
		if _, err := io.Copy(&buf, src); err != nil {
			return NewBadRequestError("failed to read upload", err)
		}
	} else if _, err := snapshot.CropPNG(&buf, src, h.snapshot.Tolerance, h.snapshot.Padding); err != nil {
		return imageError("invalid PNG image", err)
	}

	name := file.Filename
	if name == "" || name == "blob" {
		name = "snapshot.png"
	}
	info, err := h.files.Save(name, "image/png", models.FileKindSnapshot, owner.UID, &buf)
	if err != nil {
		return NewInternalError("failed to save snapshot", err)
	}
	h.pruneSnapshots(owner.UID)
	return c.JSON(http.StatusCreated, info)
}

// pruneSnapshots deletes the snapshots of owner beyond the retention limit.
func (h *FileHandlerImpl) pruneSnapshots(owner string) {
	if h.snapshot.Retain <= 0 {
		return
	}
	all, err := h.files.List(models.FileKindSnapshot, 0)
	if err != nil {
		return
	}
	var mine []*models.FileInfo
	for _, info := range all {
		if info.Owner == owner {
			mine = append(mine, info)
		}
	}
	if len(mine) <= h.snapshot.Retain {
		return
	}
	for _, info := range mine[h.snapshot.Retain:] {
		if err := h.files.Delete(info.ID); err != nil {
			fmt.Printf("[Files] Failed to prune snapshot %s: %v\n", info.ID, err)
		}
	}
}

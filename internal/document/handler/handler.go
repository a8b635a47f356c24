package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/service"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/versions"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/draftledger/draftledger/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// maxUploadBytes caps multipart reads; the character limit is enforced by the service.
const maxUploadBytes = 1 << 20

// RegisterDocumentRoutes mounts the document API on r. r is expected to sit
// behind an identity middleware that sets the caller id.
func RegisterDocumentRoutes(r gin.IRoutes, svc service.Service) {
	h := &documentHandler{svc: svc}
	r.GET("/api/documents", h.list)
	r.POST("/api/documents", h.create)
	r.POST("/api/documents/upload", h.upload)
	r.GET("/api/documents/:id", h.get)
	r.PATCH("/api/documents/:id", h.rename)
	r.DELETE("/api/documents/:id", h.delete)

	r.POST("/api/documents/:id/versions", h.saveVersion)
	r.GET("/api/documents/:id/versions", h.listVersions)
	r.GET("/api/documents/:id/versions/:number", h.previewVersion)
	r.GET("/api/documents/:id/versions/:number/export", h.exportVersion)
	r.POST("/api/documents/:id/revert", h.revert)
}

type documentHandler struct {
	svc service.Service
}

// writeError maps domain errors to status codes. A 403 never says whether
// the requested version exists.
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, document.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, document.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, document.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
		return
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrStorageUnavailable), errors.Is(err, document.ErrArchiveUnavailable):
		logger.Errorw("request failed", "path", c.FullPath(), "err", err)
		status = http.StatusServiceUnavailable
	case errors.Is(err, versions.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		// another writer holds the document
		logger.Warnw("document busy", "path", c.FullPath(), "err", err)
		c.Header("Retry-After", "1")
		status = http.StatusServiceUnavailable
	default:
		logger.Errorw("request failed", "path", c.FullPath(), "err", err)
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": http.StatusText(status)})
}

func callerID(c *gin.Context) (string, bool) {
	id := middleware.CallerID(c)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return "", false
	}
	return id, true
}

func versionNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version number must be a positive integer"})
		return 0, false
	}
	return n, true
}

func (h *documentHandler) list(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	docType := document.Type(strings.ToLower(strings.TrimSpace(c.Query("type"))))
	if docType != "" && !docType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be one of resume, letter, sop"})
		return
	}
	list, err := h.svc.List(c.Request.Context(), caller, docType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *documentHandler) create(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req service.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Create(c.Request.Context(), caller, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// formatFromName guesses the content format from an uploaded file name.
func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return document.FormatPlain
	case ".html", ".htm":
		return document.FormatHTML
	case ".md", ".markdown":
		return document.FormatMarkdown
	}
	return ""
}

// upload accepts multipart/form-data with title, type, contentFormat and
// either a "file" part or a "content" field.
func (h *documentHandler) upload(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	in := service.CreateInput{
		Title:         c.PostForm("title"),
		Type:          document.Type(c.PostForm("type")),
		Content:       c.PostForm("content"),
		ContentFormat: c.PostForm("contentFormat"),
	}
	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}
		defer f.Close()
		b, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}
		if len(b) > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		in.Content = string(b)
		if in.ContentFormat == "" {
			in.ContentFormat = formatFromName(fh.Filename)
		}
		if in.Title == "" {
			in.Title = strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
		}
	case errors.Is(err, http.ErrMissingFile):
		if in.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file or content is required"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Create(c.Request.Context(), caller, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *documentHandler) get(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *documentHandler) rename(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Rename(c.Request.Context(), c.Param("id"), caller, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *documentHandler) delete(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), caller); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *documentHandler) saveVersion(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req service.VersionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.SaveNewVersion(c.Request.Context(), c.Param("id"), caller, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *documentHandler) listVersions(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	vs, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (h *documentHandler) previewVersion(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	n, ok := versionNumber(c)
	if !ok {
		return
	}
	v, err := h.svc.PreviewVersion(c.Request.Context(), c.Param("id"), caller, n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *documentHandler) exportVersion(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	n, ok := versionNumber(c)
	if !ok {
		return
	}
	u, err := h.svc.ExportVersion(c.Request.Context(), c.Param("id"), caller, n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

func (h *documentHandler) revert(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req struct {
		VersionNumber int `json:"versionNumber" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "versionNumber must be a positive integer"})
		return
	}
	d, err := h.svc.RevertToVersion(c.Request.Context(), c.Param("id"), caller, req.VersionNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

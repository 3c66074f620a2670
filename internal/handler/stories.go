package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nssportal/internal/auth"
	"nssportal/internal/stories"
)

// maxUploadMemory bounds the multipart form kept in memory; larger files
// spill to disk.
const maxUploadMemory = 32 << 20

func (h *Handler) listBatches(c *gin.Context) {
	batches, err := h.gallery.Batches(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (h *Handler) getBatch(c *gin.Context) {
	b, err := h.gallery.Batch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) featured(c *gin.Context) {
	f, err := h.gallery.Featured(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) createBatch(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := h.gallery.CreateBatch(c.Request.Context(), auth.CurrentSession(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) createAlbum(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.gallery.CreateAlbum(c.Request.Context(), auth.CurrentSession(c), c.Param("id"), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) mergeAlbum(c *gin.Context) {
	if err := h.gallery.MergeAlbum(c.Request.Context(), auth.CurrentSession(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// addMedia takes a multipart form with one or more "files" parts.
func (h *Handler) addMedia(c *gin.Context) {
	s := auth.CurrentSession(c)
	if !s.CanCoordinate() {
		h.writeError(c, auth.ErrForbidden)
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(c, "multipart form with files required")
		return
	}
	var uploads []stories.Upload
	for _, fh := range c.Request.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "open "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(c, "read "+fh.Filename)
			return
		}
		uploads = append(uploads, stories.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	added, err := h.gallery.AddMedia(c.Request.Context(), s, c.Param("id"), uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"media": added})
}

func (h *Handler) deleteMedia(c *gin.Context) {
	if err := h.gallery.DeleteMedia(c.Request.Context(), auth.CurrentSession(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleFeatured(c *gin.Context) {
	id := c.Param("id")
	on, err := h.gallery.ToggleFeatured(c.Request.Context(), auth.CurrentSession(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "featured": on})
}

package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nssportal/internal/auth"
	"nssportal/internal/cloudinary"
	"nssportal/internal/portal"
)

func (h *Handler) listStudents(c *gin.Context) {
	if !h.refresh(c, h.svc.Students) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": h.svc.Students.All()})
}

func (h *Handler) createStudent(c *gin.Context) {
	var req portal.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := h.svc.Students.Add(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var patch portal.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if err := h.svc.Students.Update(c.Request.Context(), id, patch); err != nil {
		h.writeError(c, err)
		return
	}
	st, _ := h.svc.Students.Get(id)
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.svc.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) studentReport(c *gin.Context) {
	if !h.refresh(c, h.svc.Students, h.svc.Programs) {
		return
	}
	rep, err := h.svc.StudentReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) addActivity(c *gin.Context) {
	var req portal.NewActivity
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.svc.AddActivity(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) deleteActivity(c *gin.Context) {
	if err := h.svc.DeleteActivity(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadProfileImage stores a student's picture. Officers may set anyone's;
// students only their own. The body is either a multipart "file" or JSON
// {"data": "<base64 data URL>"}.
func (h *Handler) uploadProfileImage(c *gin.Context) {
	id := c.Param("id")
	s := auth.CurrentSession(c)
	if own, _ := s.StudentID(); !s.IsOfficer() && own != id {
		h.writeError(c, auth.ErrForbidden)
		return
	}
	if h.media == nil {
		h.writeError(c, cloudinary.ErrNotConfigured)
		return
	}

	ctx := c.Request.Context()
	var (
		res *cloudinary.UploadResult
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, "file field required")
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
			h.writeError(c, &portal.ValidationError{Fields: map[string]string{"file": "must be an image"}})
			return
		}
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			badRequest(c, "read file failed")
			return
		}
		res, err = h.media.Upload(ctx, cloudinary.Image, data, header.Filename, "profiles")
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			badRequest(c, "provide {\"data\": \"<base64 data URL>\"}")
			return
		}
		if !strings.HasPrefix(body.Data, "data:image/") {
			h.writeError(c, &portal.ValidationError{Fields: map[string]string{"data": "must be an image data URL"}})
			return
		}
		res, err = h.media.UploadBase64(ctx, cloudinary.Image, body.Data, "profiles")
	}
	if err != nil {
		h.writeError(c, fmt.Errorf("profile image for %s: %w", id, err))
		return
	}

	url := res.SecureURL
	if err := h.svc.Students.Update(ctx, id, portal.StudentPatch{ProfileImageURL: &url}); err != nil {
		h.writeError(c, err)
		return
	}
	st, _ := h.svc.Students.Get(id)
	c.JSON(http.StatusOK, st)
}

func (h *Handler) listCoordinators(c *gin.Context) {
	if !h.refresh(c, h.svc.Coordinators) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"coordinators": h.svc.Coordinators.All()})
}

func (h *Handler) createCoordinator(c *gin.Context) {
	var req portal.NewCoordinator
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	co, err := h.svc.Coordinators.Add(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, co)
}

func (h *Handler) updateCoordinator(c *gin.Context) {
	var patch portal.CoordinatorPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if err := h.svc.Coordinators.Update(c.Request.Context(), id, patch); err != nil {
		h.writeError(c, err)
		return
	}
	co, _ := h.svc.Coordinators.Get(id)
	c.JSON(http.StatusOK, co)
}

func (h *Handler) deleteCoordinator(c *gin.Context) {
	if err := h.svc.DeleteCoordinator(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleCoordinatorAccess(c *gin.Context) {
	id := c.Param("id")
	active, err := h.svc.Coordinators.ToggleAccess(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

func (h *Handler) listDepartments(c *gin.Context) {
	if !h.refresh(c, h.svc.Departments) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": h.svc.Departments.All()})
}

func (h *Handler) createDepartment(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.Departments.Add(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) updateDepartment(c *gin.Context) {
	var patch portal.DepartmentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if err := h.svc.Departments.Update(c.Request.Context(), id, patch); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) toggleDepartment(c *gin.Context) {
	id := c.Param("id")
	active, err := h.svc.Departments.ToggleActive(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

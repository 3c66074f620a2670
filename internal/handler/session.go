package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nssportal/internal/auth"
	"nssportal/internal/idle"
	"nssportal/internal/portal"
	"nssportal/internal/view"
)

func (h *Handler) login(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "provide {\"id\": ..., \"password\": ...}")
		return
	}
	s, token, err := h.auth.Login(c.Request.Context(), creds)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"session": s,
		"view":    view.HomeFor(s.Role),
	})
}

func (h *Handler) logout(c *gin.Context) {
	s := auth.CurrentSession(c)
	if err := h.auth.Logout(c.Request.Context(), s.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": view.Home})
}

func (h *Handler) session(c *gin.Context) {
	s := auth.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"session":      s,
		"view":         view.HomeFor(s.Role),
		"idle_timeout": h.auth.Monitor().Window().String(),
	})
}

// activity records a UI interaction. The request itself already reset the
// idle window in RequireSession; the event name is only checked.
func (h *Handler) activity(c *gin.Context) {
	var req struct {
		Event string `json:"event"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "provide {\"event\": ...}")
		return
	}
	if !idle.IsActivityEvent(req.Event) {
		h.writeError(c, &portal.ValidationError{Fields: map[string]string{"event": "not an activity event"}})
		return
	}
	c.Status(http.StatusNoContent)
}

// getView resolves the requested view against the caller's session and
// returns the data that view shows.
func (h *Handler) getView(c *gin.Context) {
	requested := c.Param("view")
	v, _ := view.Parse(requested)
	s := auth.CurrentSession(c)
	resolved := view.Resolve(s, v)

	data, ok := h.viewData(c, s, resolved)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": resolved, "requested": requested, "data": data})
}

func (h *Handler) viewData(c *gin.Context, s *auth.Session, v view.View) (gin.H, bool) {
	svc := h.svc
	switch v {
	case view.Home, view.Programs:
		if !h.refresh(c, svc.Programs) {
			return nil, false
		}
		return gin.H{"programs": svc.Programs.All()}, true
	case view.Student:
		id, _ := s.StudentID()
		if !h.refresh(c, svc.Students, svc.Programs) {
			return nil, false
		}
		rep, err := svc.StudentReport(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return nil, false
		}
		return gin.H{"report": rep}, true
	case view.Coordinator:
		if !h.refresh(c, svc.Students, svc.Programs) {
			return nil, false
		}
		return gin.H{"students": svc.Students.All(), "programs": svc.Programs.All()}, true
	case view.Officer:
		if !h.refresh(c, svc.Students, svc.Coordinators, svc.Programs, svc.Departments) {
			return nil, false
		}
		return gin.H{
			"students":     svc.Students.All(),
			"coordinators": svc.Coordinators.All(),
			"programs":     svc.Programs.All(),
			"departments":  svc.Departments.All(),
		}, true
	case view.Stories:
		batches, err := h.gallery.Batches(c.Request.Context())
		if err != nil {
			h.writeError(c, err)
			return nil, false
		}
		return gin.H{"batches": batches}, true
	}
	return gin.H{}, true
}

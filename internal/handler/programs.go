package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nssportal/internal/auth"
	"nssportal/internal/portal"
)

func (h *Handler) listPrograms(c *gin.Context) {
	if !h.refresh(c, h.svc.Programs) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"programs": h.svc.Programs.All()})
}

func (h *Handler) getProgram(c *gin.Context) {
	if !h.refresh(c, h.svc.Programs) {
		return
	}
	p, ok := h.svc.Programs.Get(c.Param("id"))
	if !ok {
		h.writeError(c, portal.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProgram(c *gin.Context) {
	var req portal.NewProgram
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !h.refresh(c, h.svc.Students, h.svc.Coordinators) {
		return
	}
	p, err := h.svc.AddProgram(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// manageable checks that s may edit the program: coordinators and the
// officer always may, a student only when listed as one of its coordinators.
func (h *Handler) manageable(c *gin.Context, s *auth.Session, programID string) bool {
	if !h.refresh(c, h.svc.Students, h.svc.Coordinators, h.svc.Programs) {
		return false
	}
	if _, ok := h.svc.Programs.Get(programID); !ok {
		h.writeError(c, portal.ErrNotFound)
		return false
	}
	if s.CanCoordinate() {
		return true
	}
	if id, ok := s.StudentID(); ok && h.svc.CanManageProgram(id, programID) {
		return true
	}
	h.writeError(c, auth.ErrForbidden)
	return false
}

func (h *Handler) updateProgram(c *gin.Context) {
	var patch portal.ProgramPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	s := auth.CurrentSession(c)
	id := c.Param("id")
	if !h.manageable(c, s, id) {
		return
	}
	// Student coordinators run a program but cannot change who runs it.
	if !s.CanCoordinate() && patch.CoordinatorIDs != nil {
		h.writeError(c, auth.ErrForbidden)
		return
	}
	if err := h.svc.EditProgram(c.Request.Context(), id, patch); err != nil {
		h.writeError(c, err)
		return
	}
	p, _ := h.svc.Programs.Get(id)
	c.JSON(http.StatusOK, p)
}

func (h *Handler) setParticipants(c *gin.Context) {
	var req struct {
		ParticipantIDs []string `json:"participant_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	if !h.manageable(c, auth.CurrentSession(c), id) {
		return
	}
	if err := h.svc.SetParticipants(c.Request.Context(), id, req.ParticipantIDs); err != nil {
		h.writeError(c, err)
		return
	}
	p, _ := h.svc.Programs.Get(id)
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProgram(c *gin.Context) {
	if err := h.svc.Programs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) myReport(c *gin.Context) {
	id, _ := auth.CurrentSession(c).StudentID()
	if !h.refresh(c, h.svc.Students, h.svc.Programs) {
		return
	}
	rep, err := h.svc.StudentReport(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) myCertificate(c *gin.Context) {
	id, _ := auth.CurrentSession(c).StudentID()
	if !h.refresh(c, h.svc.Students, h.svc.Coordinators, h.svc.Programs) {
		return
	}
	cert, err := h.svc.Certificate(id, c.Param("programId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

// Package handler exposes the portal over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"nssportal/internal/auth"
	"nssportal/internal/cloudinary"
	"nssportal/internal/metrics"
	"nssportal/internal/portal"
	"nssportal/internal/stories"
)

// ProfileStorage uploads student profile images.
type ProfileStorage interface {
	Upload(ctx context.Context, resourceType string, data []byte, filename, subfolder string) (*cloudinary.UploadResult, error)
	UploadBase64(ctx context.Context, resourceType, dataURL, subfolder string) (*cloudinary.UploadResult, error)
}

// Handler serves the /v1 API.
type Handler struct {
	svc     *portal.Service
	auth    *auth.Manager
	gallery *stories.Gallery
	media   ProfileStorage
	metrics *metrics.Metrics
}

// New creates a Handler. media may be nil, in which case profile image
// uploads answer 503.
func New(svc *portal.Service, mgr *auth.Manager, gallery *stories.Gallery, media ProfileStorage, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, auth: mgr, gallery: gallery, media: media, metrics: m}
}

// Register mounts every route on r, normally the /v1 group.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/auth/login", h.login)
	r.GET("/programs", h.listPrograms)
	r.GET("/programs/:id", h.getProgram)
	r.GET("/views/:view", auth.OptionalSession(h.auth), h.getView)

	s := r.Group("", auth.RequireSession(h.auth))
	s.POST("/auth/logout", h.logout)
	s.GET("/session", h.session)
	s.POST("/session/activity", h.activity)

	coord := s.Group("", auth.RequireRole((*auth.Session).CanCoordinate))
	coord.GET("/students", h.listStudents)
	coord.GET("/coordinators", h.listCoordinators)
	coord.GET("/departments", h.listDepartments)
	coord.POST("/programs", h.createProgram)
	coord.DELETE("/programs/:id", h.deleteProgram)

	s.PUT("/programs/:id", h.updateProgram)
	s.PUT("/programs/:id/participants", h.setParticipants)
	s.POST("/students/:id/profile-image", h.uploadProfileImage)

	officer := s.Group("", auth.RequireRole((*auth.Session).IsOfficer))
	officer.POST("/students", h.createStudent)
	officer.PUT("/students/:id", h.updateStudent)
	officer.DELETE("/students/:id", h.deleteStudent)
	officer.GET("/students/:id/report", h.studentReport)
	officer.POST("/students/:id/activities", h.addActivity)
	officer.DELETE("/activities/:id", h.deleteActivity)
	officer.POST("/coordinators", h.createCoordinator)
	officer.PUT("/coordinators/:id", h.updateCoordinator)
	officer.DELETE("/coordinators/:id", h.deleteCoordinator)
	officer.POST("/coordinators/:id/toggle-access", h.toggleCoordinatorAccess)
	officer.POST("/departments", h.createDepartment)
	officer.PUT("/departments/:id", h.updateDepartment)
	officer.POST("/departments/:id/toggle-active", h.toggleDepartment)

	student := s.Group("/me", auth.RequireRole((*auth.Session).IsStudent))
	student.GET("/report", h.myReport)
	student.GET("/certificates/:programId", h.myCertificate)

	st := s.Group("/stories")
	st.GET("/batches", h.listBatches)
	st.GET("/batches/:id", h.getBatch)
	st.GET("/batches/:id/featured", h.featured)
	st.POST("/batches", h.createBatch)
	st.POST("/batches/:id/albums", h.createAlbum)
	st.POST("/batches/:id/merge", h.mergeAlbum)
	st.POST("/albums/:id/media", h.addMedia)
	st.DELETE("/media/:id", h.deleteMedia)
	st.POST("/media/:id/feature", h.toggleFeatured)
}

type refresher interface {
	FetchAll(ctx context.Context) error
	State() portal.State
}

// refresh reloads repos before a read. A failed reload is served from the
// cache when the cache has loaded before; otherwise the error is written and
// refresh returns false.
func (h *Handler) refresh(c *gin.Context, repos ...refresher) bool {
	for _, r := range repos {
		if err := r.FetchAll(c.Request.Context()); err != nil {
			if !r.State().Loaded {
				h.writeError(c, err)
				return false
			}
			h.countStoreError(err)
			log.Printf("serving cached data: %v", err)
		}
	}
	return true
}

func (h *Handler) countStoreError(err error) {
	var se *portal.StoreError
	if errors.As(err, &se) {
		h.metrics.StoreError(se.Collection)
	}
}

// writeError maps an error to its status code and JSON body.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		ve    *portal.ValidationError
		stale *portal.StaleError
		se    *portal.StoreError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": ve.Fields})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, auth.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": h.auth.Notice(), "code": "session_expired", "view": "home"})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, portal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, portal.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, portal.ErrNoChanges):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cloudinary.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media storage not configured"})
	case errors.As(err, &stale):
		h.countStoreError(err)
		log.Printf("write saved, reload failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "saved, but reloading failed; refresh to see the change", "saved": true, "retryable": true})
	case errors.As(err, &se):
		h.metrics.StoreError(se.Collection)
		log.Printf("store failure: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data store unavailable, try again", "retryable": se.Retryable()})
	default:
		log.Printf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

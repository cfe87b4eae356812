package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type LibraryHandler struct {
	svc          LibraryService
	hub          *WSHub
	pollInterval time.Duration
}

// NewLibraryHandler creates the library read handlers. pollInterval is how
// often watch streams re-read the availability pipeline.
func NewLibraryHandler(svc LibraryService, hub *WSHub, pollInterval time.Duration) *LibraryHandler {
	if pollInterval <= 0 {
		pollInterval = defaultWatchPollInterval
	}
	return &LibraryHandler{svc: svc, hub: hub, pollInterval: pollInterval}
}

// ListLibraries handles GET /api/libraries.
func (h *LibraryHandler) ListLibraries(c *gin.Context) {
	entry, err := h.svc.LibraryInfo(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timed(entry))
}

// GetAvailability handles GET /api/libraries/:libraryId/availability.
// ?date defaults to today and must be today or tomorrow.
func (h *LibraryHandler) GetAvailability(c *gin.Context) {
	id, err := libraryIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	date, err := dateQuery(c, h.svc)
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := h.svc.LibraryAvailability(c.Request.Context(), id, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timed(entry))
}

// GetAreaMapURLs handles GET /api/libraries/:libraryId/areas/map-urls.
// Areas without a known map are reported as null.
func (h *LibraryHandler) GetAreaMapURLs(c *gin.Context) {
	id, err := libraryIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := h.svc.AreaMapURLs(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timed(entry))
}

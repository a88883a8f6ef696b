package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/eventstore"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/instagram"
	"github.com/pevans/eventfed/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pagination defaults for list endpoints.
const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Scraper runs on-demand scrapes and exposes its selector set.
type Scraper interface {
	Run(ctx context.Context, trigger discovery.Trigger) *discovery.Result
	Selectors() scraper.SelectorConfig
	SetSelectors(config scraper.SelectorConfig)
}

// EventStore is the read and write surface of the event store.
type EventStore interface {
	eventstore.Recorder
	ListEvents(filter eventstore.EventFilter) ([]eventstore.StoredEvent, error)
	CountEvents(filter eventstore.EventFilter) (int, error)
	GetEvent(key string) (*eventstore.StoredEvent, error)
	ListRuns(limit int) ([]eventstore.Run, error)
}

// PostSource fetches Instagram posts.
type PostSource interface {
	RecentMedia(ctx context.Context) ([]instagram.Post, error)
}

// FeedFetcher fetches events from RSS/Atom feeds.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]events.Event, error)
}

// Server represents the HTTP API server for campus events.
type Server struct {
	scraper Scraper
	store   EventStore
	posts   PostSource
	feeds   FeedFetcher
	logger  logrus.FieldLogger
}

// NewServer creates a new API server. store, posts and feeds may be nil;
// their endpoints then report the feature as unavailable.
func NewServer(sc Scraper, store EventStore, posts PostSource, feeds FeedFetcher, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		scraper: sc,
		store:   store,
		posts:   posts,
		feeds:   feeds,
		logger:  logger,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api")
	api.GET("/scrape-events", s.HandleScrapeEvents)
	api.GET("/events", s.HandleListEvents)
	api.GET("/events/lookup", s.HandleLookupEvent)
	api.GET("/runs", s.HandleListRuns)
	api.GET("/instagram-posts", s.HandleInstagramPosts)
	api.GET("/feed-events", s.HandleFeedEvents)
	api.GET("/selectors", s.HandleGetSelectors)
	api.PUT("/selectors", s.HandleUpdateSelectors)

	router.GET("/health", s.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// requestLogger logs each request through logrus.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		}).Debug("Request handled")
	}
}

// ScrapeEventsResponse represents the response for GET /api/scrape-events.
type ScrapeEventsResponse struct {
	Events []events.Event `json:"events"`
	RunID  string         `json:"run_id"`
}

// ListEventsResponse represents the response for GET /api/events.
type ListEventsResponse struct {
	Events []eventstore.StoredEvent `json:"events"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ListRunsResponse represents the response for GET /api/runs.
type ListRunsResponse struct {
	Runs []eventstore.Run `json:"runs"`
}

// InstagramPostsResponse represents the response for GET
// /api/instagram-posts.
type InstagramPostsResponse struct {
	Posts []instagram.Post `json:"posts"`
}

// FeedEventsResponse represents the response for GET /api/feed-events.
type FeedEventsResponse struct {
	Events []events.Event `json:"events"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, eventstore.ErrEventNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, instagram.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, errorResponse("not_configured", err.Error()))
	default:
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleScrapeEvents handles GET /api/scrape-events.
func (s *Server) HandleScrapeEvents(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	// The run is detached from the request; a client that disconnects does
	// not cut it short
	result := s.scraper.Run(c.Request.Context(), discovery.TriggerOnDemand)
	if s.store != nil {
		eventstore.Persist(s.store, result, s.logger)
	}

	// The scraper has already logged the failure with this run ID
	if !result.OK() {
		c.JSON(http.StatusBadGateway, gin.H{
			"events": []events.Event{},
			"run_id": result.RunID.String(),
			"error": gin.H{
				"code":    "scrape_failed",
				"message": "Failed to scrape events",
			},
		})
		return
	}

	c.JSON(http.StatusOK, ScrapeEventsResponse{
		Events: events.FilterByCategory(result.Events, category),
		RunID:  result.RunID.String(),
	})
}

// HandleListEvents handles GET /api/events.
func (s *Server) HandleListEvents(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("not_configured", "Event storage is not configured"))
		return
	}

	category, ok := categoryParam(c)
	if !ok {
		return
	}
	limit, offset, ok := paginationParams(c)
	if !ok {
		return
	}

	filter := eventstore.EventFilter{Limit: limit, Offset: offset}
	if category != "" {
		filter.Category = &category
	}

	stored, err := s.store.ListEvents(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	total, err := s.store.CountEvents(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListEventsResponse{
		Events: stored,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleLookupEvent handles GET /api/events/lookup?title=...&date=....
func (s *Server) HandleLookupEvent(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("not_configured", "Event storage is not configured"))
		return
	}

	title := c.Query("title")
	date := c.Query("date")
	if title == "" || date == "" {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "title and date are required"))
		return
	}

	stored, err := s.store.GetEvent(events.Event{Title: title, Date: date}.Key())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stored)
}

// HandleListRuns handles GET /api/runs.
func (s *Server) HandleListRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("not_configured", "Event storage is not configured"))
		return
	}

	limit, _, ok := paginationParams(c)
	if !ok {
		return
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs})
}

// HandleInstagramPosts handles GET /api/instagram-posts.
func (s *Server) HandleInstagramPosts(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	if s.posts == nil {
		s.handleError(c, instagram.ErrNotConfigured)
		return
	}

	posts, err := s.posts.RecentMedia(c.Request.Context())
	if errors.Is(err, instagram.ErrNotConfigured) {
		s.handleError(c, err)
		return
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch Instagram posts")
		c.JSON(http.StatusBadGateway, errorResponse("upstream_error", "Failed to fetch Instagram posts"))
		return
	}

	filtered := instagram.FilterByCategory(posts, category)
	if filtered == nil {
		filtered = []instagram.Post{}
	}
	c.JSON(http.StatusOK, InstagramPostsResponse{Posts: filtered})
}

// HandleFeedEvents handles GET /api/feed-events.
func (s *Server) HandleFeedEvents(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	if s.feeds == nil {
		c.JSON(http.StatusOK, FeedEventsResponse{Events: []events.Event{}})
		return
	}

	evs, err := s.feeds.Fetch(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch feeds")
		c.JSON(http.StatusBadGateway, errorResponse("upstream_error", "Failed to fetch feed events"))
		return
	}

	filtered := events.FilterByCategory(evs, category)
	if filtered == nil {
		filtered = []events.Event{}
	}
	c.JSON(http.StatusOK, FeedEventsResponse{Events: filtered})
}

// HandleGetSelectors handles GET /api/selectors.
func (s *Server) HandleGetSelectors(c *gin.Context) {
	c.JSON(http.StatusOK, s.scraper.Selectors())
}

// HandleUpdateSelectors handles PUT /api/selectors. Fields left out keep
// their default values.
func (s *Server) HandleUpdateSelectors(c *gin.Context) {
	var updates scraper.SelectorConfig
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	updates = updates.WithDefaults()
	if err := updates.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	s.scraper.SetSelectors(updates)
	s.logger.WithField("container_selector", updates.ContainerSelector).Info("Selectors updated")

	c.JSON(http.StatusOK, s.scraper.Selectors())
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// categoryParam reads the optional category query parameter. It writes a
// 400 response and returns false when the value is not a known category.
func categoryParam(c *gin.Context) (string, bool) {
	category := c.Query("category")
	if category != "" && !events.IsCategory(category) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid category parameter"))
		return "", false
	}
	return category, true
}

// paginationParams reads limit and offset. It writes a 400 response and
// returns false on invalid values.
func paginationParams(c *gin.Context) (limit, offset int, ok bool) {
	limit = defaultLimit
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err != nil || parsedLimit < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid limit parameter"))
			return 0, 0, false
		}
		limit = min(parsedLimit, maxLimit)
	}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		parsedOffset, err := strconv.Atoi(offsetParam)
		if err != nil || parsedOffset < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid offset parameter"))
			return 0, 0, false
		}
		offset = parsedOffset
	}

	return limit, offset, true
}

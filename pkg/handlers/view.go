package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/resultview"
	"github.com/ekaya-inc/cleansing-engine/pkg/services"
)

// viewSessionIDKey holds the Redis view session id inside the cookie session.
const viewSessionIDKey = "view_session_id"

// ViewConfig configures where result view preferences are kept.
type ViewConfig struct {
	CookieName   string
	FilterPrefix string
	// RedisTTL is used when preferences are stored in Redis.
	RedisTTL time.Duration
}

// ViewColumn is a grid column with its current header class.
type ViewColumn struct {
	resultview.Column
	SortedClass string `json:"sorted_class"`
}

// ViewResponse is one rendered page of the cleansing results grid.
type ViewResponse struct {
	State        models.ViewState                `json:"state"`
	Columns      []ViewColumn                    `json:"columns"`
	Results      []*models.RecordValidationGroup `json:"cleansing_results"`
	Labels       []models.Label                  `json:"labels"`
	Page         int                             `json:"page"`
	Pages        int                             `json:"pages"`
	TotalVisible int                             `json:"total_visible"`
}

// SortRequest is the body of POST /api/cleansing/view/sort.
type SortRequest struct {
	Column string `json:"column"`
}

// FiltersRequest is the body of POST /api/cleansing/view/filters.
type FiltersRequest struct {
	FilterParams map[string]string `json:"filter_params"`
}

// PageSizeRequest is the body of POST /api/cleansing/view/page_size.
type PageSizeRequest struct {
	PageSize int `json:"page_size"`
}

// viewMutation changes the view before the page is rendered.
type viewMutation func(ctx context.Context, v *resultview.View, groups []*models.RecordValidationGroup)

// ViewHandler serves the cleansing results grid with the caller's sort,
// filter and page size preferences kept in their session.
type ViewHandler struct {
	cleansingService services.CleansingService
	sessions         sessions.Store
	redis            *redis.Client // nil keeps preferences in the cookie itself
	cfg              ViewConfig
	logger           *zap.Logger
}

// NewViewHandler creates a new view handler. When redisClient is nil the
// preferences are stored in the session cookie.
func NewViewHandler(
	cleansingService services.CleansingService,
	sessionStore sessions.Store,
	redisClient *redis.Client,
	cfg ViewConfig,
	logger *zap.Logger,
) *ViewHandler {
	return &ViewHandler{
		cleansingService: cleansingService,
		sessions:         sessionStore,
		redis:            redisClient,
		cfg:              cfg,
		logger:           logger,
	}
}

// RegisterRoutes registers the view handler's routes on the given mux.
func (h *ViewHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/cleansing/view", tenantMiddleware(h.Get))
	mux.HandleFunc("POST /api/cleansing/view/sort", tenantMiddleware(h.Sort))
	mux.HandleFunc("POST /api/cleansing/view/filters", tenantMiddleware(h.Filters))
	mux.HandleFunc("POST /api/cleansing/view/page_size", tenantMiddleware(h.PageSize))
}

// Get handles GET /api/cleansing/view?organization_id=N&import_file_id=M[&page=P]
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil)
}

// Sort handles POST /api/cleansing/view/sort
// Clicking the current sort column flips the direction. Unsortable columns
// leave the view unchanged.
func (h *ViewHandler) Sort(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	h.serve(w, r, func(ctx context.Context, v *resultview.View, _ []*models.RecordValidationGroup) {
		v.SortBy(ctx, req.Column)
	})
}

// Filters handles POST /api/cleansing/view/filters
// The posted params replace the previous filter set.
func (h *ViewHandler) Filters(w http.ResponseWriter, r *http.Request) {
	var req FiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	h.serve(w, r, func(ctx context.Context, v *resultview.View, groups []*models.RecordValidationGroup) {
		v.ApplyFilters(ctx, groups, req.FilterParams)
	})
}

// PageSize handles POST /api/cleansing/view/page_size
func (h *ViewHandler) PageSize(w http.ResponseWriter, r *http.Request) {
	var req PageSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	if req.PageSize <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_page_size", "page_size must be a positive integer", h.logger)
		return
	}
	h.serve(w, r, func(ctx context.Context, v *resultview.View, _ []*models.RecordValidationGroup) {
		v.SetPageSize(ctx, req.PageSize)
	})
}

func (h *ViewHandler) serve(w http.ResponseWriter, r *http.Request, mutate viewMutation) {
	ctx := r.Context()

	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	importFileID, ok := ParseImportFileID(w, r, h.logger)
	if !ok {
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer", h.logger)
			return
		}
		page = n
	}

	results, err := h.cleansingService.GetResults(ctx, organizationID, importFileID)
	if err != nil {
		writeServiceError(w, err, "results_failed", "Failed to load cleansing results", h.logger)
		return
	}

	session, store := h.openStore(r)
	view := resultview.New(h.cfg.FilterPrefix, store, resultview.DefaultColumns(), h.logger)
	view.Restore(ctx)
	view.Refilter(results.Results)
	if mutate != nil {
		mutate(ctx, view, results.Results)
	}
	view.Sort(results.Results)
	pageGroups, pages := view.Page(results.Results, page)

	// The cookie must be written before the body.
	if err := session.Save(r, w); err != nil {
		h.logger.Warn("Failed to save view session", zap.Error(err))
	}

	columns := resultview.DefaultColumns()
	viewColumns := make([]ViewColumn, len(columns))
	for i, c := range columns {
		viewColumns[i] = ViewColumn{Column: c, SortedClass: view.SortedClass(c.Name)}
	}

	writeSuccess(w, http.StatusOK, ViewResponse{
		State:        view.State(),
		Columns:      viewColumns,
		Results:      pageGroups,
		Labels:       labels.NewRegistry(results.Results, results.Labels).Labels(),
		Page:         page,
		Pages:        pages,
		TotalVisible: len(resultview.Visible(results.Results)),
	}, h.logger)
}

// openStore returns the caller's session and the preference store bound to it.
// A session that cannot be decoded is replaced by a fresh one.
func (h *ViewHandler) openStore(r *http.Request) (*sessions.Session, resultview.Store) {
	session, err := h.sessions.Get(r, h.cfg.CookieName)
	if err != nil {
		h.logger.Debug("Starting new view session", zap.Error(err))
	}
	if session == nil {
		session = sessions.NewSession(h.sessions, h.cfg.CookieName)
	}

	if h.redis == nil {
		return session, resultview.NewCookieSessionStore(session)
	}

	id, ok := session.Values[viewSessionIDKey].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		session.Values[viewSessionIDKey] = id
	}
	return session, resultview.NewRedisStore(h.redis, id, h.cfg.RedisTTL)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

type viewClient struct {
	t       *testing.T
	mux     *http.ServeMux
	cookies []*http.Cookie
}

func newViewClient(t *testing.T) *viewClient {
	svc := &mockCleansingService{
		rows:   handlerRows,
		labels: []models.Label{{ID: models.LabelID(7), Name: "Missing PM ID", Color: "blue", StyleClass: "primary"}},
	}
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	handler := NewViewHandler(svc, store, nil, ViewConfig{CookieName: "cleansing_view", FilterPrefix: "cleansing"}, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, passthroughTenant)
	return &viewClient{t: t, mux: mux}
}

// do sends a request carrying the session cookie from earlier responses.
func (c *viewClient) do(method, path, body string) (*httptest.ResponseRecorder, ViewResponse) {
	c.t.Helper()
	url := path + "organization_id=1&import_file_id=5"
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}

	var resp struct {
		Data ViewResponse `json:"data"`
	}
	if rec.Code == http.StatusOK {
		require.NoError(c.t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec, resp.Data
}

func viewIDs(groups []*models.RecordValidationGroup) []int64 {
	out := make([]int64, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.RecordID)
	}
	return out
}

func TestViewHandler_DefaultView(t *testing.T) {
	c := newViewClient(t)

	rec, view := c.do(http.MethodGet, "/api/cleansing/view?", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int64{1, 2, 3}, viewIDs(view.Results))
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 1, view.Pages)
	assert.Equal(t, 3, view.TotalVisible)
	assert.Len(t, view.Columns, 6)

	// Existing label first, then one ephemeral label per remaining message.
	names := make([]string, 0, len(view.Labels))
	for _, l := range view.Labels {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"Missing PM ID", "Out of range", "Bad Tax Lot"}, names)
	assert.Nil(t, view.Labels[1].ID)
}

func TestViewHandler_SortPersistsInSession(t *testing.T) {
	c := newViewClient(t)

	rec, view := c.do(http.MethodPost, "/api/cleansing/view/sort?", `{"column": "pm_property_id"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3, 1, 2}, viewIDs(view.Results))
	assert.Equal(t, "sorted sort_desc", view.Columns[1].SortedClass)
	require.NotEmpty(t, c.cookies, "session cookie is issued")

	_, view = c.do(http.MethodGet, "/api/cleansing/view?", "")
	assert.Equal(t, "pm_property_id", view.State.SortColumn)
	assert.True(t, view.State.SortDescending)
	assert.Equal(t, []int64{3, 1, 2}, viewIDs(view.Results))

	_, view = c.do(http.MethodPost, "/api/cleansing/view/sort?", `{"column": "pm_property_id"}`)
	assert.False(t, view.State.SortDescending)
	assert.Equal(t, []int64{2, 1, 3}, viewIDs(view.Results))
}

func TestViewHandler_UnsortableColumnIsIgnored(t *testing.T) {
	c := newViewClient(t)

	rec, view := c.do(http.MethodPost, "/api/cleansing/view/sort?", `{"column": "message"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, view.State.SortColumn)
}

func TestViewHandler_FiltersPersistAcrossRequests(t *testing.T) {
	c := newViewClient(t)

	_, view := c.do(http.MethodPost, "/api/cleansing/view/filters?", `{"filter_params": {"address_line_1": "oak"}}`)
	assert.Equal(t, []int64{1, 3}, viewIDs(view.Results))
	assert.Equal(t, 2, view.TotalVisible)

	_, view = c.do(http.MethodGet, "/api/cleansing/view?", "")
	assert.Equal(t, map[string]string{"address_line_1": "oak"}, view.State.FilterParams)
	assert.Equal(t, []int64{1, 3}, viewIDs(view.Results))

	_, view = c.do(http.MethodPost, "/api/cleansing/view/filters?", `{"filter_params": {}}`)
	assert.Equal(t, 3, view.TotalVisible)
}

func TestViewHandler_PageSize(t *testing.T) {
	c := newViewClient(t)

	_, view := c.do(http.MethodPost, "/api/cleansing/view/page_size?", `{"page_size": 2}`)
	assert.Equal(t, 2, view.State.PageSize)
	assert.Equal(t, 2, view.Pages)
	assert.Equal(t, []int64{1, 2}, viewIDs(view.Results))

	_, view = c.do(http.MethodGet, "/api/cleansing/view?page=2&", "")
	assert.Equal(t, []int64{3}, viewIDs(view.Results))

	rec, _ := c.do(http.MethodPost, "/api/cleansing/view/page_size?", `{"page_size": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = c.do(http.MethodGet, "/api/cleansing/view?page=0&", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewHandler_TamperedCookieStartsFresh(t *testing.T) {
	c := newViewClient(t)
	c.cookies = []*http.Cookie{{Name: "cleansing_view", Value: "garbage"}}

	rec, view := c.do(http.MethodGet, "/api/cleansing/view?", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, view.State.SortColumn)
}

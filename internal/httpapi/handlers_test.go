package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/souschef/recipe-assistant/internal/couch"
	"github.com/souschef/recipe-assistant/internal/domain"
	"github.com/souschef/recipe-assistant/internal/store"
)

type fakeAnalytics struct {
	popular  map[string][]couch.ViewRow
	weekdays map[string][]couch.ViewRow
	users    map[string]*domain.User
	favs     []domain.RecipeUsage
	err      error
}

func (f *fakeAnalytics) PopularCounts(_ context.Context, view string) ([]couch.ViewRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.popular[view]
	if !ok {
		return nil, store.ErrUnknownView
	}
	return rows, nil
}

func (f *fakeAnalytics) WeekdayCounts(_ context.Context, view string) ([]couch.ViewRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.weekdays[view]
	if !ok {
		return nil, store.ErrUnknownView
	}
	return rows, nil
}

func (f *fakeAnalytics) FindUser(_ context.Context, name string) (*domain.User, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	u, ok := f.users[name]
	return u, ok, nil
}

func (f *fakeAnalytics) FavoritesForUser(_ context.Context, _ *domain.User, limit int) ([]domain.RecipeUsage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.favs) {
		limit = len(f.favs)
	}
	return f.favs[:limit], nil
}

func newTestRouter(a Analytics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(a)
	api := r.Group("/api/v1")
	api.GET("/popular/:view", h.Popular)
	api.GET("/weekdays/:view", h.Weekdays)
	api.GET("/users/:name/favorites", h.Favorites)
	return r
}

func doGET(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPopular_ReturnsRows(t *testing.T) {
	fa := &fakeAnalytics{popular: map[string][]couch.ViewRow{
		"ingredients": {{Key: "onion,tomato", Value: 4}, {Key: "basil", Value: 1}},
	}}
	w := doGET(t, newTestRouter(fa), "/api/v1/popular/ingredients")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		View string `json:"view"`
		Rows []struct {
			Key   string `json:"key"`
			Count int64  `json:"count"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if body.View != "ingredients" || len(body.Rows) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Rows[0].Key != "onion,tomato" || body.Rows[0].Count != 4 {
		t.Errorf("row[0] = %+v", body.Rows[0])
	}
}

func TestPopular_UnknownViewIs400(t *testing.T) {
	fa := &fakeAnalytics{popular: map[string][]couch.ViewRow{}}
	w := doGET(t, newTestRouter(fa), "/api/v1/popular/nonsense")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWeekdays_StoreErrorIs500(t *testing.T) {
	fa := &fakeAnalytics{err: errors.New("couch down")}
	w := doGET(t, newTestRouter(fa), "/api/v1/weekdays/recipes")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestFavorites_UnknownUserIs404(t *testing.T) {
	fa := &fakeAnalytics{users: map[string]*domain.User{}}
	w := doGET(t, newTestRouter(fa), "/api/v1/users/ghost/favorites")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestFavorites_HonorsLimit(t *testing.T) {
	fa := &fakeAnalytics{
		users: map[string]*domain.User{"alice": {Name: "alice"}},
		favs: []domain.RecipeUsage{
			{ID: "r1", Title: "Carbonara", Count: 9},
			{ID: "r2", Title: "Pad Thai", Count: 5},
			{ID: "r3", Title: "Chili", Count: 2},
		},
	}
	w := doGET(t, newTestRouter(fa), "/api/v1/users/alice/favorites?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		User      string               `json:"user"`
		Favorites []domain.RecipeUsage `json:"favorites"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(body.Favorites) != 2 {
		t.Fatalf("favorites = %+v, want 2 entries", body.Favorites)
	}
	if body.Favorites[0].Title != "Carbonara" {
		t.Errorf("favorites[0] = %+v", body.Favorites[0])
	}
}

func TestFavorites_BadLimitIs400(t *testing.T) {
	fa := &fakeAnalytics{users: map[string]*domain.User{"alice": {Name: "alice"}}}
	for _, raw := range []string{"zero", "0", "-3"} {
		w := doGET(t, newTestRouter(fa), "/api/v1/users/alice/favorites?limit="+raw)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%q: status = %d, want 400", raw, w.Code)
		}
	}
}

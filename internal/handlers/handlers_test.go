package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"github.com/joshua-takyi/hiver/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testUserHeader = "X-Test-User"

// fakeAuth stands in for the authenticator: the header names the user.
func fakeAuth(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(testUserHeader); id != "" {
			c.Set(helpers.SessionKey, &session.Identity{ID: id, Email: id + "@example.com"})
		} else if required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, helpers.ErrorResponse(models.ErrAuthAbsent.Error()))
			return
		}
		c.Next()
	}
}

// failingReads turns every list into a read failure.
type failingReads struct {
	models.Gateway
}

func (failingReads) ListRecent(ctx context.Context, collection string, limit int, filter *models.Filter) ([]models.Record, error) {
	return nil, &models.ReadError{Op: "list", Collection: collection, Err: errors.New("connection refused")}
}

type env struct {
	router *gin.Engine
	mem    *models.MemoryRepo
}

func newEnv(t *testing.T, gw models.Gateway) *env {
	t.Helper()
	mem := models.NewMemoryRepo()
	if gw == nil {
		gw = mem
	}
	rsvp := services.NewRSVPService(gw, services.RSVPModeUpsert, nil)
	hives := services.NewHiveService(gw, rsvp, nil, nil)
	buzz := services.NewBuzzService(gw, nil)
	profiles := services.NewProfileService(gw, nil)

	r := gin.New()
	r.GET("/health", Health("memory", mem))
	r.GET("/home", Home(hives, buzz))
	r.GET("/hives", ListHives(hives))
	r.GET("/discover", Discover(hives))
	r.POST("/hives", fakeAuth(true), CreateHive(hives))
	r.GET("/hives/:id", fakeAuth(false), GetHive(hives))
	r.POST("/hives/:id/rsvp", fakeAuth(true), RSVP(hives, rsvp))
	r.GET("/buzz", ListBuzz(buzz))
	r.POST("/buzz", fakeAuth(true), PostBuzz(buzz))
	r.GET("/profile", fakeAuth(true), GetMyProfile(profiles))
	r.PATCH("/profile", fakeAuth(true), UpdateMyProfile(profiles))
	r.GET("/users/:id", fakeAuth(false), GetUserProfile(profiles))
	r.GET("/session", fakeAuth(false), Session())
	return &env{router: r, mem: mem}
}

type reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Warning string          `json:"warning"`
	Limit   int             `json:"limit"`
	Total   int             `json:"total"`
}

func (e *env) do(t *testing.T, method, path, user string, body any) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out reply
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func bbq(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "Grill and chill",
		"location":    "Labadi Beach",
		"date":        "2025-07-04",
		"time":        "18:30",
		"category":    "Food",
		"visibility":  "public",
	}
}

func TestCreateAndListHives(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/hives", "", bbq("Summer BBQ"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodPost, "/hives", "u-ama", bbq("Older hive"))
	require.Equal(t, http.StatusCreated, status)
	status, res := e.do(t, http.MethodPost, "/hives", "u-ama", bbq("Summer BBQ"))
	require.Equal(t, http.StatusCreated, status)
	created := decode[models.Hive](t, res.Data)
	assert.NotEmpty(t, created.ID)

	status, res = e.do(t, http.MethodGet, "/hives", "", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[[]models.HiveView](t, res.Data)
	require.Len(t, list, 2)
	assert.Equal(t, "Summer BBQ", list[0].Name)
	assert.Equal(t, services.DefaultHiveLimit, res.Limit)
	assert.Equal(t, 2, res.Total)

	status, res = e.do(t, http.MethodGet, "/hives?limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.HiveView](t, res.Data), 1)

	status, res = e.do(t, http.MethodGet, "/discover?category=food", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.HiveView](t, res.Data), 2)
}

func TestCreateHiveRejectsBadInput(t *testing.T) {
	e := newEnv(t, nil)
	in := bbq("Summer BBQ")
	in["visibility"] = "friends"

	status, res := e.do(t, http.MethodPost, "/hives", "u-ama", in)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, res.Error, "invalid input")
}

func TestCreateHiveWriteFailureEchoesInput(t *testing.T) {
	e := newEnv(t, nil)
	e.mem.FailWrites(errors.New("row-level security policy violation"))

	status, res := e.do(t, http.MethodPost, "/hives", "u-ama", bbq("Summer BBQ"))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.False(t, res.Success)
	echoed := decode[services.CreateHiveInput](t, res.Data)
	assert.Equal(t, "Summer BBQ", echoed.Name)
}

func TestInvalidLimit(t *testing.T) {
	e := newEnv(t, nil)
	for _, path := range []string{"/hives?limit=abc", "/hives?limit=0", "/buzz?limit=-3"} {
		status, _ := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, status, path)
	}
}

func TestGetHive(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodGet, "/hives/nonexistent-id", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	private := bbq("Secret party")
	private["visibility"] = "private"
	_, res := e.do(t, http.MethodPost, "/hives", "u-ama", private)
	id := decode[models.Hive](t, res.Data).ID

	status, _ = e.do(t, http.MethodGet, "/hives/"+id, "u-kofi", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, http.MethodGet, "/hives/"+id, "u-ama", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRSVP(t *testing.T) {
	e := newEnv(t, nil)
	_, res := e.do(t, http.MethodPost, "/hives", "u-ama", bbq("Summer BBQ"))
	id := decode[models.Hive](t, res.Data).ID

	tcases := []struct {
		name       string
		user       string
		hive       string
		status     string
		wantStatus int
	}{
		{name: "signed out", user: "", hive: id, status: "going", wantStatus: http.StatusUnauthorized},
		{name: "bad status", user: "u-kofi", hive: id, status: "maybe", wantStatus: http.StatusBadRequest},
		{name: "missing hive", user: "u-kofi", hive: "nope", status: "going", wantStatus: http.StatusNotFound},
		{name: "going", user: "u-kofi", hive: id, status: "going", wantStatus: http.StatusOK},
		{name: "changed mind", user: "u-kofi", hive: id, status: "interested", wantStatus: http.StatusOK},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := e.do(t, http.MethodPost, "/hives/"+tc.hive+"/rsvp", tc.user, map[string]string{"status": tc.status})
			assert.Equal(t, tc.wantStatus, status)
		})
	}

	status, res := e.do(t, http.MethodGet, "/hives/"+id, "u-kofi", nil)
	require.Equal(t, http.StatusOK, status)
	view := decode[models.HiveView](t, res.Data)
	assert.EqualValues(t, 1, view.AttendeeCount)
	assert.Equal(t, "interested", view.ViewerStatus)
}

func TestBuzz(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/buzz", "u-kofi", map[string]any{"description": "Football at 5?", "visibility": "public"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = e.do(t, http.MethodPost, "/buzz", "u-kofi", map[string]any{"description": "just me", "visibility": "private"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = e.do(t, http.MethodPost, "/buzz", "u-kofi", map[string]any{"description": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, res := e.do(t, http.MethodGet, "/buzz", "", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[[]models.BuzzView](t, res.Data)
	require.Len(t, list, 1)
	assert.Equal(t, "Football at 5?", list[0].Description)
}

func TestHome(t *testing.T) {
	e := newEnv(t, nil)
	e.do(t, http.MethodPost, "/hives", "u-ama", bbq("Summer BBQ"))
	e.do(t, http.MethodPost, "/buzz", "u-ama", map[string]any{"description": "See you there"})

	status, res := e.do(t, http.MethodGet, "/home", "", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[homePage](t, res.Data)
	assert.Len(t, page.Hives, 1)
	assert.Len(t, page.Buzz, 1)
	assert.Empty(t, page.Warnings)
}

func TestListsDegradeOnReadFailure(t *testing.T) {
	e := newEnv(t, failingReads{Gateway: models.NewMemoryRepo()})

	status, res := e.do(t, http.MethodGet, "/hives", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "could not load hives", res.Warning)
	assert.Empty(t, decode[[]models.HiveView](t, res.Data))

	status, res = e.do(t, http.MethodGet, "/home", "", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[homePage](t, res.Data)
	assert.Equal(t, []string{"could not load hives", "could not load buzz"}, page.Warnings)
	assert.NotNil(t, page.Hives)
	assert.NotNil(t, page.Buzz)
}

func TestProfiles(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodGet, "/profile", "u-ama", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, res := e.do(t, http.MethodPatch, "/profile", "u-ama", map[string]any{"display_name": "Ama <b>Mensah</b>"})
	require.Equal(t, http.StatusOK, status)
	p := decode[models.Profile](t, res.Data)
	assert.Equal(t, "Ama Mensah", p.DisplayName)

	status, res = e.do(t, http.MethodGet, "/users/u-ama", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[models.Profile](t, res.Data).Email)

	status, res = e.do(t, http.MethodGet, "/users/u-ama", "u-ama", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-ama@example.com", decode[models.Profile](t, res.Data).Email)

	status, _ = e.do(t, http.MethodPatch, "/profile", "u-ama", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSessionAndHealth(t *testing.T) {
	e := newEnv(t, nil)

	status, res := e.do(t, http.MethodGet, "/session", "u-ama", nil)
	require.Equal(t, http.StatusOK, status)
	body := decode[map[string]*session.Identity](t, res.Data)
	require.NotNil(t, body["user"])
	assert.Equal(t, "u-ama", body["user"].ID)

	status, res = e.do(t, http.MethodGet, "/session", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, decode[map[string]*session.Identity](t, res.Data)["user"])

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"memory"`)
}

func TestStatusFor(t *testing.T) {
	tcases := []struct {
		err  error
		want int
	}{
		{models.ErrAuthAbsent, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrNotFound, http.StatusNotFound},
		{models.Invalidf("bad"), http.StatusBadRequest},
		{models.ErrEmailTaken, http.StatusConflict},
		{&models.WriteError{Op: "create", Collection: "hives", Err: errors.New("x")}, http.StatusBadGateway},
		{&models.ReadError{Op: "list", Collection: "hives", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRSVPToHiddenHiveWritesNothing(t *testing.T) {
	e := newEnv(t, nil)
	private := bbq("Secret party")
	private["visibility"] = "private"
	_, res := e.do(t, http.MethodPost, "/hives", "u-ama", private)
	id := decode[models.Hive](t, res.Data).ID

	status, _ := e.do(t, http.MethodPost, "/hives/"+id+"/rsvp", "u-kofi", map[string]string{"status": "going"})
	assert.Equal(t, http.StatusNotFound, status)

	n, err := e.mem.CountWhere(context.Background(), models.AttendeesCollection, models.FieldHiveID, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, res = e.do(t, http.MethodPost, "/hives/"+id+"/rsvp", "u-ama", map[string]string{"status": "going"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decode[models.HiveView](t, res.Data).AttendeeCount)
}

func TestListLimitIsClamped(t *testing.T) {
	e := newEnv(t, nil)
	tcases := []struct {
		path string
		want int
	}{
		{path: "/hives?limit=500", want: services.MaxListLimit},
		{path: "/discover?category=food&limit=1000", want: services.MaxListLimit},
		{path: "/buzz?limit=101", want: services.MaxListLimit},
		{path: "/buzz?limit=7", want: 7},
		{path: "/buzz", want: services.FeedBuzzLimit},
	}
	for _, tc := range tcases {
		status, res := e.do(t, http.MethodGet, tc.path, "", nil)
		require.Equal(t, http.StatusOK, status, tc.path)
		assert.Equal(t, tc.want, res.Limit, tc.path)
	}
}

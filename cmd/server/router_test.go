package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/groupchat/internal/config"
	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/models"
)

const password = "correct-horse"

type apiTest struct {
	t   *testing.T
	srv *Server
}

func newAPITest(t *testing.T) *apiTest {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Port:         "0",
		JWTSecret:    "test-secret",
		JWTTTL:       time.Hour,
		UserCacheTTL: time.Minute,
		CORSOrigins:  []string{"http://localhost:4200"},
	}
	srv := newServer(cfg, db, rdb)
	t.Cleanup(srv.Hub.Stop)
	return &apiTest{t: t, srv: srv}
}

func (a *apiTest) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.srv.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *apiTest) seedRoot() string {
	a.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(a.t, err)
	root := &models.User{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: string(hash),
		Roles:        []models.Role{models.RoleChatUser, models.RoleSuperAdmin},
		Valid:        true,
	}
	require.NoError(a.t, a.srv.DB.CreateUser(context.Background(), root))
	return a.login("root@example.com")
}

func (a *apiTest) login(email string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[map[string]any](a.t, w)["token"].(string)
}

// signUp registers name, validates it as root and logs it in.
func (a *apiTest) signUp(rootToken, name string) (string, string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": name,
		"email":    name + "@example.com",
		"password": password,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[map[string]any](a.t, w)["id"].(string)

	w = a.do(http.MethodPost, "/api/v1/users/"+id+"/validate", rootToken, nil)
	require.Equal(a.t, http.StatusNoContent, w.Code, w.Body.String())
	return id, a.login(name + "@example.com")
}

func TestRegisterRequiresValidation(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()

	w := a.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, decode[map[string]any](t, w)["valid"].(bool))

	w = a.do(http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": password})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "email": "other@example.com", "password": password,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, bobToken := a.signUp(rootToken, "bob")
	w = a.do(http.MethodGet, "/api/v1/users/me", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decode[map[string]any](t, w)["username"])
}

func TestSuperAdminRoutes(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()
	aliceID, aliceToken := a.signUp(rootToken, "alice")

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/users", aliceToken, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/users", rootToken, nil).Code)

	w := a.do(http.MethodPost, "/api/v1/users/"+aliceID+"/roles", rootToken, gin.H{"role": "SuperAdmin"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(http.MethodPost, "/api/v1/users/"+aliceID+"/roles", rootToken, gin.H{"role": "SuperAdmin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(http.MethodPost, "/api/v1/users/"+aliceID+"/roles", rootToken, gin.H{"role": "Wizard"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/api/v1/users", rootToken, gin.H{
		"username": "carol", "email": "carol@example.com", "password": password, "roles": []string{"GroupAdmin"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	carol := decode[map[string]any](t, w)
	assert.True(t, carol["valid"].(bool))
	assert.ElementsMatch(t, []any{"ChatUser", "GroupAdmin"}, carol["roles"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodDelete, "/api/v1/users/nope", rootToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/v1/users/"+models.NewID().String(), rootToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/v1/users/"+carol["id"].(string), rootToken, nil).Code)
}

func TestGroupAndChannelFlow(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()
	_, aliceToken := a.signUp(rootToken, "alice")
	bobID, bobToken := a.signUp(rootToken, "bob")

	w := a.do(http.MethodPost, "/api/v1/groups", aliceToken, gin.H{"name": "gophers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	groupID := decode[map[string]any](t, w)["id"].(string)
	groupPath := "/api/v1/groups/" + groupID

	require.Equal(t, http.StatusAccepted, a.do(http.MethodPost, groupPath+"/join", bobToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, groupPath+"/join", bobToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, groupPath+"/requests/"+bobID+"/approve", bobToken, nil).Code)
	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, groupPath+"/requests/"+bobID+"/approve", aliceToken, nil).Code)

	w = a.do(http.MethodGet, "/api/v1/groups/mine", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["groups"], 1)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, groupPath+"/channels", bobToken, gin.H{"name": "random"}).Code)
	w = a.do(http.MethodPost, groupPath+"/channels", aliceToken, gin.H{"name": "random"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	channelID := decode[map[string]any](t, w)["id"].(string)
	channelPath := "/api/v1/channels/" + channelID

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, channelPath+"/messages", bobToken, gin.H{"content": "hi"}).Code)

	require.Equal(t, http.StatusAccepted, a.do(http.MethodPost, channelPath+"/join", bobToken, nil).Code)
	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, channelPath+"/requests/"+bobID, aliceToken, gin.H{"approve": true}).Code)

	w = a.do(http.MethodPost, channelPath+"/messages", bobToken, gin.H{"content": "hello gophers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "bob", decode[map[string]any](t, w)["sender_username"])

	w = a.do(http.MethodGet, channelPath+"/messages", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Messages []map[string]any `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}](t, w)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello gophers", page.Messages[0]["content"])
	assert.False(t, page.HasMore)

	w = a.do(http.MethodGet, channelPath+"/messages/export", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "hello gophers")
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, channelPath+"/messages/export", bobToken, nil).Code)

	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, channelPath+"/bans/"+bobID, aliceToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, channelPath+"/messages", bobToken, gin.H{"content": "let me in"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, channelPath+"/messages", bobToken, nil).Code)

	// banned from the channel, still in the group
	w = a.do(http.MethodGet, groupPath, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["members"], bobID)

	require.Equal(t, http.StatusNoContent, a.do(http.MethodPost, groupPath+"/leave", bobToken, nil).Code)
	w = a.do(http.MethodGet, "/api/v1/users/me", bobToken, nil)
	assert.Empty(t, decode[map[string]any](t, w)["groups"])

	require.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, groupPath, aliceToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, channelPath, aliceToken, nil).Code)
}

func TestGroupErrors(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()
	_, aliceToken := a.signUp(rootToken, "alice")

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/groups/not-an-id", aliceToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/groups/"+models.NewID().String(), aliceToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/v1/groups/"+models.NewID().String()+"/join", aliceToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/groups", aliceToken, gin.H{}).Code)

	w := a.do(http.MethodPost, "/api/v1/groups", aliceToken, gin.H{"name": "gophers"})
	require.Equal(t, http.StatusCreated, w.Code)
	groupPath := "/api/v1/groups/" + decode[map[string]any](t, w)["id"].(string)

	w = a.do(http.MethodPatch, groupPath, aliceToken, gin.H{"name": "  rustaceans "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rustaceans", decode[map[string]any](t, w)["name"])

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, groupPath+"/members/"+models.NewID().String(), aliceToken, nil).Code)
}

func TestUpdateMeKeepsMembership(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()
	_, aliceToken := a.signUp(rootToken, "alice")
	a.signUp(rootToken, "bob")

	w := a.do(http.MethodPost, "/api/v1/groups", aliceToken, gin.H{"name": "gophers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	groupID := decode[map[string]any](t, w)["id"].(string)

	w = a.do(http.MethodPatch, "/api/v1/users/me", aliceToken, gin.H{"username": "alicia", "avatar_url": "/uploads/a.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode[map[string]any](t, w)
	assert.Equal(t, "alicia", me["username"])
	assert.Equal(t, []any{groupID}, me["groups"])

	w = a.do(http.MethodPatch, "/api/v1/users/me", aliceToken, gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/api/v1/users/me", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alicia", decode[map[string]any](t, w)["username"])
}

func TestChannelMessagesLimit(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()
	_, aliceToken := a.signUp(rootToken, "alice")

	w := a.do(http.MethodPost, "/api/v1/groups", aliceToken, gin.H{"name": "gophers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	groupPath := "/api/v1/groups/" + decode[map[string]any](t, w)["id"].(string)
	w = a.do(http.MethodPost, groupPath+"/channels", aliceToken, gin.H{"name": "random"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	messagesPath := "/api/v1/channels/" + decode[map[string]any](t, w)["id"].(string) + "/messages"

	for _, content := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusCreated, a.do(http.MethodPost, messagesPath, aliceToken, gin.H{"content": content}).Code)
	}

	for _, limit := range []string{"abc", "0", "-1", "2.5"} {
		w = a.do(http.MethodGet, messagesPath+"?limit="+limit, aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}

	type page struct {
		Messages []map[string]any `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	w = a.do(http.MethodGet, messagesPath+"?limit=2", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[page](t, w)
	require.Len(t, p.Messages, 2)
	assert.Equal(t, "three", p.Messages[1]["content"])
	assert.True(t, p.HasMore)

	w = a.do(http.MethodGet, messagesPath+"?limit=5000", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p = decode[page](t, w)
	assert.Len(t, p.Messages, 3)
	assert.False(t, p.HasMore)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newAPITest(t)
	rootToken := a.seedRoot()

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/auth/logout", rootToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/users/me", rootToken, nil).Code)
}

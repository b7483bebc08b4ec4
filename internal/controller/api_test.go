package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"mathpulse_backend/internal/config"
	"mathpulse_backend/internal/middleware"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/testutil"
	"mathpulse_backend/internal/util"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const apiSecret = "controller-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: apiSecret, ExpireTime: time.Hour},
		Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()},
	}
	settings := service.DefaultSettings()

	users := repository.NewUserRepository(db)
	activity := repository.NewXPActivityRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	friends := repository.NewFriendshipRepository(db, nil)
	rank := repository.NewRankIndex(nil)

	gamification := service.NewGamificationService(users, activity, rank, settings)
	leaderboard := service.NewLeaderboardService(users, activity, friends, rank, settings)
	achievement := service.NewAchievementService(repository.NewAchievementRepository(db), progressRepo, gamification, leaderboard)
	progress := service.NewProgressService(progressRepo, users, gamification, settings)

	authCtl := NewAuthController(service.NewAuthService(users, cfg))
	userCtl := NewUserController(service.NewUserService(users, rank, service.NewStorageService(&cfg.Storage)))
	progressCtl := NewProgressController(progress, gamification, achievement)
	gamificationCtl := NewGamificationController(gamification)
	leaderboardCtl := NewLeaderboardController(leaderboard)
	friendCtl := NewFriendshipController(service.NewFriendshipService(friends, users))

	r := gin.New()
	r.POST("/api/register", authCtl.Register)
	r.POST("/api/login", authCtl.Login)

	api := r.Group("/api", middleware.AuthMiddleware(apiSecret))
	api.GET("/profile", userCtl.GetProfile)
	api.POST("/profile/avatar", userCtl.UploadAvatar)
	api.POST("/progress/quizzes/complete", progressCtl.CompleteQuiz)
	api.POST("/progress/lessons/complete", progressCtl.CompleteLesson)
	api.GET("/leaderboard", leaderboardCtl.GetLeaderboard)
	api.POST("/friends/requests", friendCtl.SendFriendRequest)
	api.POST("/teacher/xp/award", middleware.RoleMiddleware(model.Teacher), gamificationCtl.AwardXP)
	api.PUT("/admin/users/:id/status", middleware.RoleMiddleware(model.Admin), userCtl.SetUserStatus)

	return &testAPI{t: t, db: db, router: r}
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return a.serve(req, token)
}

func (a *testAPI) serve(req *http.Request, token string) (int, envelope) {
	a.t.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *testAPI) token(user *model.User) string {
	a.t.Helper()
	tok, err := util.GenerateJWT(user, apiSecret, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	reg := gin.H{"name": "Ada", "email": "Ada@Example.com", "password": "correct-horse"}
	code, env := api.do(http.MethodPost, "/api/register", "", reg)
	require.Equal(t, http.StatusCreated, code, env.Message)

	var created model.User
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, model.Student, created.Role)
	assert.Equal(t, 1, created.Level)

	code, _ = api.do(http.MethodPost, "/api/register", "", reg)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = api.do(http.MethodPost, "/api/register", "", gin.H{"name": "Root", "email": "root@example.com", "password": "correct-horse", "role": "admin"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(http.MethodPost, "/api/login", "", gin.H{"email": "ada@example.com", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = api.do(http.MethodPost, "/api/login", "", gin.H{"email": "ada@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, code)
	var login service.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	code, env = api.do(http.MethodGet, "/api/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var profile struct {
		Name          string `json:"name"`
		NextLevelXP   int    `json:"nextLevelXP"`
		XPToNextLevel int    `json:"xpToNextLevel"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, 100, profile.NextLevelXP)
	assert.Equal(t, 100, profile.XPToNextLevel)
}

func TestCompleteQuizRunsFollowUp(t *testing.T) {
	api := newTestAPI(t)
	user := testutil.CreateUser(t, api.db, "bea", model.Student, 0)
	tok := api.token(user)

	quiz := gin.H{"subjectId": "algebra", "moduleId": "m1", "quizId": "q1", "score": 100, "timeSpent": 30}
	code, env := api.do(http.MethodPost, "/api/progress/quizzes/complete", tok, quiz)
	require.Equal(t, http.StatusOK, code, env.Message)

	var resp struct {
		Quiz         service.QuizResult              `json:"quiz"`
		Streak       service.StreakResult            `json:"streak"`
		Achievements []service.AchievementDefinition `json:"achievements"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotNil(t, resp.Quiz.Attempt)
	require.NotNil(t, resp.Quiz.Award)
	assert.Equal(t, 1, resp.Quiz.Attempt.AttemptNumber)
	assert.Equal(t, 100, resp.Quiz.Award.XPAwarded)
	assert.Equal(t, 1, resp.Streak.Streak)

	var unlocked []string
	for _, a := range resp.Achievements {
		unlocked = append(unlocked, a.ID)
	}
	assert.ElementsMatch(t, []string{"first_quiz", "perfect_score"}, unlocked)

	quiz["score"] = 150
	code, _ = api.do(http.MethodPost, "/api/progress/quizzes/complete", tok, quiz)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/progress/lessons/complete", tok, gin.H{"subjectId": "algebra"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLeaderboardQueryValidation(t *testing.T) {
	api := newTestAPI(t)
	user := testutil.CreateUser(t, api.db, "cy", model.Student, 10)
	tok := api.token(user)

	code, _ := api.do(http.MethodGet, "/api/leaderboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(http.MethodGet, "/api/leaderboard?timeRange=decade", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodGet, "/api/leaderboard?friendsOnly=maybe", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := api.do(http.MethodGet, "/api/leaderboard?timeRange=week&limit=5", tok, nil)
	require.Equal(t, http.StatusOK, code)
	// 空列表在响应中被省略
	var entries []service.LeaderboardEntry
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &entries))
	}
	assert.Empty(t, entries, "no activity inside the window")

	code, env = api.do(http.MethodGet, "/api/leaderboard", tok, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsCurrentUser)
}

func TestTeacherAwardRequiresRole(t *testing.T) {
	api := newTestAPI(t)
	student := testutil.CreateUser(t, api.db, "dee", model.Student, 0)
	teacher := testutil.CreateUser(t, api.db, "eli", model.Teacher, 0)

	award := gin.H{"userId": student.ID, "amount": 40, "activityType": string(model.ActivityLessonComplete)}

	code, _ := api.do(http.MethodPost, "/api/teacher/xp/award", api.token(student), award)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := api.do(http.MethodPost, "/api/teacher/xp/award", api.token(teacher), award)
	require.Equal(t, http.StatusOK, code, env.Message)
	var result service.AwardResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 40, result.TotalXP)

	award["activityType"] = "bribe"
	code, _ = api.do(http.MethodPost, "/api/teacher/xp/award", api.token(teacher), award)
	assert.Equal(t, http.StatusBadRequest, code)

	award["activityType"] = string(model.ActivityLessonComplete)
	award["userId"] = 424242
	code, _ = api.do(http.MethodPost, "/api/teacher/xp/award", api.token(teacher), award)
	assert.Equal(t, http.StatusNotFound, code)

	// 超过绑定上限与配置上限都返回 400
	award["userId"] = student.ID
	for _, amount := range []int{math.MaxInt, config.AwardXPLimit + 1, 50000} {
		award["amount"] = amount
		code, _ = api.do(http.MethodPost, "/api/teacher/xp/award", api.token(teacher), award)
		assert.Equal(t, http.StatusBadRequest, code, "amount %d", amount)
	}
}

func TestCompleteLessonRejectsOversizedReward(t *testing.T) {
	api := newTestAPI(t)
	student := testutil.CreateUser(t, api.db, "ivy", model.Student, 0)

	body := gin.H{
		"subjectId": "algebra",
		"moduleId":  "linear",
		"lessonId":  "lesson-1",
		"timeSpent": 60,
		"xpReward":  math.MaxInt,
	}
	code, _ := api.do(http.MethodPost, "/api/progress/lessons/complete", api.token(student), body)
	assert.Equal(t, http.StatusBadRequest, code)

	var stored model.User
	require.NoError(t, api.db.First(&stored, student.ID).Error)
	assert.Zero(t, stored.TotalXP)
	assert.Equal(t, 1, stored.Level)
}

func TestFriendRequestErrors(t *testing.T) {
	api := newTestAPI(t)
	fox := testutil.CreateUser(t, api.db, "fox", model.Student, 0)
	gem := testutil.CreateUser(t, api.db, "gem", model.Student, 0)

	code, _ := api.do(http.MethodPost, "/api/friends/requests", api.token(fox), gin.H{"receiverId": fox.ID})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/friends/requests", api.token(fox), gin.H{"receiverId": gem.ID})
	assert.Equal(t, http.StatusCreated, code)
}

func TestUploadAvatar(t *testing.T) {
	api := newTestAPI(t)
	user := testutil.CreateUser(t, api.db, "hub", model.Student, 0)

	upload := func(name string, content []byte) (int, envelope) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return api.serve(req, api.token(user))
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	code, env := upload("me.png", png)
	require.Equal(t, http.StatusOK, code, env.Message)

	var out struct {
		Avatar string `json:"avatar"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Contains(t, out.Avatar, "/uploads/avatars/")

	stored, err := repository.NewUserRepository(api.db).FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Avatar, stored.Avatar)

	code, _ = upload("notes.txt", []byte("just some text"))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminSetUserStatus(t *testing.T) {
	api := newTestAPI(t)
	admin := testutil.CreateUser(t, api.db, "root", model.Admin, 0)
	student := testutil.CreateUser(t, api.db, "kim", model.Student, 300)

	path := "/api/admin/users/" + strconv.Itoa(int(student.ID)) + "/status"

	code, _ := api.do(http.MethodPut, path, api.token(student), gin.H{"disabled": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(http.MethodPut, path, api.token(admin), gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPut, "/api/admin/users/abc/status", api.token(admin), gin.H{"disabled": true})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPut, "/api/admin/users/424242/status", api.token(admin), gin.H{"disabled": true})
	assert.Equal(t, http.StatusNotFound, code)

	code, env := api.do(http.MethodPut, path, api.token(admin), gin.H{"disabled": true})
	require.Equal(t, http.StatusOK, code, env.Message)

	var stored model.User
	require.NoError(t, api.db.First(&stored, student.ID).Error)
	assert.True(t, stored.Disabled)
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/course-enrollment/internal/config"
	"github.com/iliyamo/course-enrollment/internal/database"
	"github.com/iliyamo/course-enrollment/internal/handler"
	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/repository"
	"github.com/iliyamo/course-enrollment/internal/router"
	"github.com/iliyamo/course-enrollment/internal/service"
)

const secret = "handler-test-secret"

type api struct {
	t     *testing.T
	e     *echo.Echo
	users *repository.UserRepo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	quiet := log.New("test")
	quiet.SetLevel(log.OFF)
	deps := service.Deps{
		Tx:          repository.NewTxManager(db, 3),
		Courses:     repository.NewCourseRepo(db, database.SQLite),
		Enrollments: repository.NewEnrollmentRepo(db),
		Policy:      service.DefaultPolicy(),
		Logger:      quiet,
	}
	courses := service.NewCourseService(deps)
	enrollments := service.NewEnrollmentService(deps)

	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: bcrypt.MinCost}
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	e := echo.New()
	e.Logger.SetLevel(log.OFF)
	e.Validator = handler.NewValidator()
	router.Register(e, router.Deps{
		JWTSecret:   secret,
		Health:      handler.Health(db),
		Auth:        handler.NewAuthHandler(cfg, users, tokens),
		Courses:     handler.NewCourseHandler(courses, nil),
		Enrollments: handler.NewEnrollmentHandler(enrollments, nil),
		Admin:       handler.NewAdminHandler(enrollments, nil),
		Users:       handler.NewUserHandler(service.NewUserService(deps.Tx, users, tokens, nil, quiet)),
	})
	return &api{t: t, e: e, users: users}
}

type reply struct {
	code int
	body map[string]any
	raw  string
}

func (a *api) do(method, path, token string, body any) reply {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	r := reply{code: rec.Code, raw: rec.Body.String()}
	_ = json.Unmarshal(rec.Body.Bytes(), &r.body)
	return r
}

// doRaw sends body verbatim as JSON.
func (a *api) doRaw(method, path, token, body string) reply {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	r := reply{code: rec.Code, raw: rec.Body.String()}
	_ = json.Unmarshal(rec.Body.Bytes(), &r.body)
	return r
}

func (a *api) expect(r reply, code int) reply {
	a.t.Helper()
	if r.code != code {
		a.t.Fatalf("status = %d, want %d; body %s", r.code, code, r.raw)
	}
	return r
}

// register creates an account and returns its access and refresh tokens.
func (a *api) register(email string, role model.Role) (access, refresh string) {
	a.t.Helper()
	r := a.expect(a.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": email, "full_name": "Test User", "password": "correct-horse", "role": string(role),
	}), http.StatusCreated)
	return tokenOf(r, "access"), tokenOf(r, "refresh")
}

func (a *api) admin(email string) string {
	a.t.Helper()
	if _, err := a.users.EnsureAdmin(context.Background(), email, "admin-password", bcrypt.MinCost); err != nil {
		a.t.Fatalf("seed admin: %v", err)
	}
	r := a.expect(a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": email, "password": "admin-password",
	}), http.StatusOK)
	return tokenOf(r, "access")
}

func tokenOf(r reply, part string) string {
	m, _ := r.body[part].(map[string]any)
	s, _ := m["token"].(string)
	return s
}

func num(r reply, key string) int {
	f, _ := r.body[key].(float64)
	return int(f)
}

func future() string {
	return time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
}

func (a *api) publishedCourse(instructor string, capacity int) int {
	a.t.Helper()
	r := a.expect(a.do(http.MethodPost, "/v1/courses", instructor, map[string]any{
		"title": "Concurrency in Go", "description": "Channels and locks", "capacity": capacity, "start_date": future(),
	}), http.StatusCreated)
	id := num(r, "id")
	a.expect(a.do(http.MethodPost, fmt.Sprintf("/v1/courses/%d/status", id), instructor, map[string]any{"status": "published"}), http.StatusOK)
	return id
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	r := a.expect(a.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	if r.raw != "ok" {
		t.Fatalf("body = %q", r.raw)
	}
}

func TestEnrollmentFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	instructor, _ := a.register("teach@example.com", model.RoleInstructor)
	alice, _ := a.register("alice@example.com", model.RoleStudent)
	bob, _ := a.register("bob@example.com", model.RoleStudent)

	courseID := a.publishedCourse(instructor, 1)
	coursePath := fmt.Sprintf("/v1/courses/%d", courseID)

	r := a.expect(a.do(http.MethodGet, coursePath, "", nil), http.StatusOK)
	if num(r, "available_seats") != 1 || r.body["status"] != "PUBLISHED" {
		t.Fatalf("unexpected course %s", r.raw)
	}

	r = a.expect(a.do(http.MethodPost, coursePath+"/enroll", alice, nil), http.StatusCreated)
	if r.body["status"] != "PENDING" {
		t.Fatalf("enrollment status = %v", r.body["status"])
	}
	enrollmentID := num(r, "id")

	r = a.expect(a.do(http.MethodPost, coursePath+"/enroll", bob, nil), http.StatusConflict)
	if r.body["code"] != "capacity_exceeded" {
		t.Fatalf("code = %v", r.body["code"])
	}
	r = a.expect(a.do(http.MethodPost, coursePath+"/enroll", alice, nil), http.StatusConflict)
	if r.body["code"] != "duplicate_active_enrollment" && r.body["code"] != "capacity_exceeded" {
		t.Fatalf("code = %v", r.body["code"])
	}

	r = a.expect(a.do(http.MethodGet, coursePath, "", nil), http.StatusOK)
	if num(r, "enrolled_count") != 1 || num(r, "available_seats") != 0 {
		t.Fatalf("course after enroll %s", r.raw)
	}

	enrollmentPath := fmt.Sprintf("/v1/enrollments/%d", enrollmentID)
	a.expect(a.do(http.MethodGet, enrollmentPath, bob, nil), http.StatusForbidden)
	a.expect(a.do(http.MethodPost, enrollmentPath+"/activate", alice, nil), http.StatusForbidden)

	r = a.expect(a.do(http.MethodPost, enrollmentPath+"/cancel", alice, nil), http.StatusOK)
	if r.body["status"] != "CANCELLED" {
		t.Fatalf("status after cancel = %v", r.body["status"])
	}
	r = a.expect(a.do(http.MethodPost, enrollmentPath+"/cancel", alice, nil), http.StatusConflict)
	if r.body["code"] != "invalid_transition" {
		t.Fatalf("code = %v", r.body["code"])
	}

	r = a.expect(a.do(http.MethodGet, coursePath, "", nil), http.StatusOK)
	if num(r, "available_seats") != 1 {
		t.Fatalf("seat not released: %s", r.raw)
	}

	r = a.expect(a.do(http.MethodPost, coursePath+"/enroll", bob, nil), http.StatusCreated)
	bobPath := fmt.Sprintf("/v1/enrollments/%d", num(r, "id"))
	a.expect(a.do(http.MethodPost, bobPath+"/activate", instructor, nil), http.StatusOK)
	a.expect(a.do(http.MethodPut, bobPath+"/progress", bob, map[string]any{"progress": 101}), http.StatusBadRequest)
	a.expect(a.do(http.MethodPut, bobPath+"/progress", bob, map[string]any{"progress": 60}), http.StatusOK)

	r = a.expect(a.do(http.MethodPost, bobPath+"/complete", bob, nil), http.StatusConflict)
	if r.body["code"] != "progress_incomplete" {
		t.Fatalf("code = %v", r.body["code"])
	}
	a.expect(a.do(http.MethodPut, bobPath+"/progress", bob, map[string]any{"progress": 100}), http.StatusOK)
	r = a.expect(a.do(http.MethodPost, bobPath+"/complete", bob, nil), http.StatusOK)
	if r.body["status"] != "COMPLETED" || r.body["completed_date"] == nil {
		t.Fatalf("completed enrollment %s", r.raw)
	}

	r = a.expect(a.do(http.MethodGet, coursePath+"/enrollments", instructor, nil), http.StatusOK)
	if items, _ := r.body["items"].([]any); len(items) != 2 {
		t.Fatalf("roster %s", r.raw)
	}
	a.expect(a.do(http.MethodGet, coursePath+"/enrollments", alice, nil), http.StatusForbidden)

	r = a.expect(a.do(http.MethodGet, "/v1/my-enrollments", alice, nil), http.StatusOK)
	if items, _ := r.body["items"].([]any); len(items) != 1 {
		t.Fatalf("my enrollments %s", r.raw)
	}
}

func TestRejectedBodyChangesNothing(t *testing.T) {
	a := newAPI(t)
	instructor, _ := a.register("teach@example.com", model.RoleInstructor)
	student, _ := a.register("stud@example.com", model.RoleStudent)
	courseID := a.publishedCourse(instructor, 2)
	coursePath := fmt.Sprintf("/v1/courses/%d", courseID)

	r := a.expect(a.doRaw(http.MethodPost, coursePath+"/enroll", student, `{"user_id": "not-a-number"`), http.StatusBadRequest)
	if r.body["code"] != "validation_error" {
		t.Fatalf("malformed enroll body %s", r.raw)
	}
	r = a.expect(a.do(http.MethodGet, coursePath, "", nil), http.StatusOK)
	if num(r, "enrolled_count") != 0 {
		t.Fatalf("seat taken by rejected request: %s", r.raw)
	}

	r = a.expect(a.do(http.MethodPost, coursePath+"/enroll", student, nil), http.StatusCreated)
	enrollmentPath := fmt.Sprintf("/v1/enrollments/%d", num(r, "id"))
	a.expect(a.do(http.MethodPost, enrollmentPath+"/activate", instructor, nil), http.StatusOK)

	r = a.expect(a.doRaw(http.MethodPut, enrollmentPath+"/progress", student, `{}`), http.StatusBadRequest)
	if r.body["code"] != "validation_error" {
		t.Fatalf("empty progress body %s", r.raw)
	}
	r = a.expect(a.doRaw(http.MethodPost, enrollmentPath+"/complete", student, `{"override": "yes"}`), http.StatusBadRequest)
	if r.body["code"] != "validation_error" {
		t.Fatalf("malformed complete body %s", r.raw)
	}
	r = a.expect(a.do(http.MethodGet, enrollmentPath, student, nil), http.StatusOK)
	if r.body["status"] != "ACTIVE" || num(r, "progress") != 0 {
		t.Fatalf("enrollment changed by rejected requests: %s", r.raw)
	}
	a.expect(a.doRaw(http.MethodPost, coursePath+"/status", instructor, `{"status": 7}`), http.StatusBadRequest)
	r = a.expect(a.do(http.MethodGet, coursePath, "", nil), http.StatusOK)
	if r.body["status"] != "PUBLISHED" || num(r, "enrolled_count") != 1 {
		t.Fatalf("course changed by rejected requests: %s", r.raw)
	}
}

func TestCourseRoutesEnforceRolesAndValidation(t *testing.T) {
	a := newAPI(t)
	instructor, _ := a.register("inst@example.com", model.RoleInstructor)
	student, _ := a.register("stud@example.com", model.RoleStudent)

	body := map[string]any{"title": "Databases", "description": "Indexes", "capacity": 10, "start_date": future()}
	a.expect(a.do(http.MethodPost, "/v1/courses", "", body), http.StatusUnauthorized)
	a.expect(a.do(http.MethodPost, "/v1/courses", student, body), http.StatusForbidden)

	r := a.expect(a.do(http.MethodPost, "/v1/courses", instructor, map[string]any{"title": "DB", "capacity": 10}), http.StatusBadRequest)
	if r.body["code"] != "validation_error" {
		t.Fatalf("code = %v", r.body["code"])
	}
	a.expect(a.do(http.MethodPost, "/v1/courses", instructor, map[string]any{"title": "Databases", "capacity": 0}), http.StatusBadRequest)

	r = a.expect(a.do(http.MethodPost, "/v1/courses", instructor, body), http.StatusCreated)
	path := fmt.Sprintf("/v1/courses/%d", num(r, "id"))

	r = a.expect(a.do(http.MethodPatch, path, instructor, map[string]any{"capacity": 25}), http.StatusOK)
	if num(r, "capacity") != 25 || r.body["title"] != "Databases" {
		t.Fatalf("patched course %s", r.raw)
	}
	r = a.expect(a.do(http.MethodPost, path+"/status", instructor, map[string]any{"status": "COMPLETED"}), http.StatusConflict)
	if r.body["code"] != "invalid_transition" {
		t.Fatalf("code = %v", r.body["code"])
	}
	a.expect(a.do(http.MethodPost, path+"/status", instructor, map[string]any{"status": "BOGUS"}), http.StatusBadRequest)

	a.expect(a.do(http.MethodGet, "/v1/courses/999", "", nil), http.StatusNotFound)
	a.expect(a.do(http.MethodGet, "/v1/courses/abc", "", nil), http.StatusNotFound)

	r = a.expect(a.do(http.MethodGet, "/v1/courses?q=datab&page_size=5", "", nil), http.StatusOK)
	if num(r, "total") != 1 || num(r, "page_size") != 5 {
		t.Fatalf("search %s", r.raw)
	}
	a.expect(a.do(http.MethodGet, "/v1/courses?status=nope", "", nil), http.StatusBadRequest)

	a.expect(a.do(http.MethodDelete, path, instructor, nil), http.StatusNoContent)
	a.expect(a.do(http.MethodGet, path, "", nil), http.StatusNotFound)
}

func TestAdminReconcile(t *testing.T) {
	a := newAPI(t)
	student, _ := a.register("s@example.com", model.RoleStudent)
	a.expect(a.do(http.MethodPost, "/v1/admin/reconcile", student, nil), http.StatusForbidden)

	admin := a.admin("root@example.com")
	r := a.expect(a.do(http.MethodPost, "/v1/admin/reconcile", admin, nil), http.StatusOK)
	if _, ok := r.body["checked"]; !ok {
		t.Fatalf("report %s", r.raw)
	}
}

func TestAuthSession(t *testing.T) {
	a := newAPI(t)
	access, refresh := a.register("me@example.com", model.RoleStudent)

	a.expect(a.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "me@example.com", "full_name": "Again", "password": "correct-horse",
	}), http.StatusConflict)
	a.expect(a.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "boss@example.com", "full_name": "Boss", "password": "correct-horse", "role": "ADMIN",
	}), http.StatusBadRequest)

	r := a.expect(a.do(http.MethodGet, "/v1/me", access, nil), http.StatusOK)
	if r.body["email"] != "me@example.com" || r.body["role"] != "STUDENT" {
		t.Fatalf("me %s", r.raw)
	}
	a.expect(a.do(http.MethodGet, "/v1/me", "", nil), http.StatusUnauthorized)

	a.expect(a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "me@example.com", "password": "wrong-password",
	}), http.StatusUnauthorized)

	r = a.expect(a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh}), http.StatusOK)
	rotated := tokenOf(r, "refresh")
	if rotated == "" || rotated == refresh {
		t.Fatal("refresh token was not rotated")
	}
	a.expect(a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh}), http.StatusUnauthorized)

	a.expect(a.do(http.MethodPost, "/v1/auth/logout", "", map[string]any{"refresh_token": rotated}), http.StatusNoContent)
	a.expect(a.do(http.MethodPost, "/v1/auth/refresh-access", "", map[string]any{"refresh_token": rotated}), http.StatusUnauthorized)
	a.expect(a.do(http.MethodPost, "/v1/auth/logout", "", nil), http.StatusBadRequest)
}

func TestAdminUserManagement(t *testing.T) {
	a := newAPI(t)
	access, refresh := a.register("carol@example.com", model.RoleStudent)
	a.register("dave@example.com", model.RoleInstructor)
	a.expect(a.do(http.MethodGet, "/v1/admin/users", access, nil), http.StatusForbidden)

	r := a.expect(a.do(http.MethodPatch, "/v1/me", access, map[string]any{"full_name": "Carol Jones"}), http.StatusOK)
	if r.body["full_name"] != "Carol Jones" || r.body["role"] != "STUDENT" {
		t.Fatalf("renamed self %s", r.raw)
	}
	a.expect(a.do(http.MethodPatch, "/v1/me", access, map[string]any{"role": "ADMIN"}), http.StatusForbidden)
	a.expect(a.doRaw(http.MethodPatch, "/v1/me", access, `{"full_name": 5}`), http.StatusBadRequest)

	admin := a.admin("root@example.com")
	r = a.expect(a.do(http.MethodGet, "/v1/admin/users?q=CAROL&page_size=5", admin, nil), http.StatusOK)
	items, _ := r.body["items"].([]any)
	if num(r, "total") != 1 || len(items) != 1 {
		t.Fatalf("search users %s", r.raw)
	}
	carol, _ := items[0].(map[string]any)
	userPath := fmt.Sprintf("/v1/admin/users/%d", int(carol["id"].(float64)))

	r = a.expect(a.do(http.MethodGet, "/v1/admin/users?role=instructor", admin, nil), http.StatusOK)
	if num(r, "total") != 1 {
		t.Fatalf("instructors %s", r.raw)
	}
	a.expect(a.do(http.MethodGet, "/v1/admin/users?role=nope", admin, nil), http.StatusBadRequest)
	a.expect(a.do(http.MethodGet, "/v1/admin/users/9999", admin, nil), http.StatusNotFound)

	r = a.expect(a.do(http.MethodPatch, userPath, admin, map[string]any{"role": "instructor"}), http.StatusOK)
	if r.body["role"] != "INSTRUCTOR" || r.body["full_name"] != "Carol Jones" {
		t.Fatalf("promoted user %s", r.raw)
	}

	r = a.expect(a.do(http.MethodPost, userPath+"/deactivate", admin, nil), http.StatusOK)
	if r.body["is_active"] != false {
		t.Fatalf("deactivated user %s", r.raw)
	}
	a.expect(a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh}), http.StatusUnauthorized)
	a.expect(a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "carol@example.com", "password": "correct-horse",
	}), http.StatusUnauthorized)
}

package tests

import (
	"context"
	"net/http"
	"testing"

	echoapi "github.com/trezcool/clotrack/apps/api/echo"
	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/user"
	"github.com/trezcool/clotrack/tests"
)

const pwd = "Str0ng!Pass"

func Test_userApi_login(t *testing.T) {
	env, app := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.edu", pwd, core.RoleAdmin)
	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog@test.edu", pwd, core.RoleInstructor)
	naughty.IsActive = false
	if _, err := env.UserRepo.UpdateUser(context.Background(), naughty); err != nil {
		t.Fatalf("UpdateUser(): %v", err)
	}

	login := func(email, password string) []byte {
		return marshallObj(t, echoapi.LoginRequest{Email: email, Password: password})
	}

	tests := []httpTest{
		{
			name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", body: login("nobody@test.edu", pwd), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid email or password"}),
		},
		{
			name: "wrong password", body: login("admin@test.edu", "nope"), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid email or password"}),
		},
		{
			name: "deactivated", body: login("ndog@test.edu", pwd), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "ok", body: login(" ADMIN@test.edu ", pwd), wantCode: http.StatusOK},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runTests(t, app, tests)

	t.Run("token works", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", login("admin@test.edu", pwd))
		app.ServeHTTP(rec, req)
		var resp echoapi.LoginResponse
		unmarshall(t, rec, &resp)
		if resp.Token == "" {
			t.Fatal("login token is empty")
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		app.ServeHTTP(rec, req)
		var me user.User
		unmarshall(t, rec, &me)
		if rec.Code != http.StatusOK || me.Email != "admin@test.edu" {
			t.Errorf("me = %d %+v; want the admin", rec.Code, me)
		}
		if me.LastLogin.IsZero() {
			t.Error("LastLogin not set by login")
		}
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	env, app := setup(t)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher@test.edu", pwd, core.RoleInstructor)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "invalid token", token: "not.a.jwt", wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "ok", token: getToken(t, env, teacher), wantCode: http.StatusOK},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runTests(t, app, tests)
}

func Test_userApi_teachers(t *testing.T) {
	env, app := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.edu", "", core.RoleAdmin)
	t1 := testutil.CreateUser(t, env.UserRepo, "Teacher One", "t1@test.edu", "", core.RoleInstructor)
	t2 := testutil.CreateUser(t, env.UserRepo, "Teacher Two", "t2@test.edu", "", core.RoleInstructor)
	adminToken := getToken(t, env, admin)

	runTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/teachers", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/teachers", token: getToken(t, env, t1), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown teacher", path: "/v1/teachers/nope", token: adminToken, wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "duplicate email", method: http.MethodPost, path: "/v1/teachers", token: adminToken,
			body: marshallObj(t, user.NewUser{Name: "Dup", Email: "T1@test.edu", Password: pwd, PasswordConfirm: pwd}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/teachers", token: adminToken,
			body:     marshallObj(t, user.NewUser{Name: "Weak", Email: "weak@test.edu", Password: "password", PasswordConfirm: "password"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			}),
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/v1/teachers/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
	})

	t.Run("list instructors", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teachers", adminToken)
		app.ServeHTTP(rec, req)
		var got []user.User
		unmarshall(t, rec, &got)
		if len(got) != 2 || got[0].ID != t1.ID || got[1].ID != t2.ID {
			t.Errorf("teachers = %+v; want [t1 t2]", got)
		}
	})

	t.Run("create, update & delete", func(t *testing.T) {
		body := marshallObj(t, user.NewUser{Name: "New Teacher", Email: "new@test.edu", Department: "CSE", Password: pwd, PasswordConfirm: pwd})
		req, rec := newAuthRequest(http.MethodPost, "/v1/teachers", adminToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create: code = %d; body %s", rec.Code, rec.Body.String())
		}
		var created user.User
		unmarshall(t, rec, &created)
		if created.Role != core.RoleInstructor || !created.IsActive {
			t.Errorf("created = %+v; want an active instructor", created)
		}

		req, rec = newAuthRequest(http.MethodPut, "/v1/teachers/"+created.ID, adminToken, []byte(`{"department": "ECE"}`))
		app.ServeHTTP(rec, req)
		var updated user.User
		unmarshall(t, rec, &updated)
		if rec.Code != http.StatusOK || updated.Department != "ECE" || updated.Name != "New Teacher" {
			t.Errorf("update: %d %+v", rec.Code, updated)
		}

		req, rec = newAuthRequest(http.MethodDelete, "/v1/teachers/"+created.ID, adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("delete: code = %d; want %d", rec.Code, http.StatusNoContent)
		}
		if _, err := env.UserSvc.GetByID(context.Background(), created.ID); !core.IsNotFound(err) {
			t.Errorf("GetByID() error = %v; want not found", err)
		}
	})
}

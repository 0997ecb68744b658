package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tchoudhury/pathshala/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	createUser(t, app.usrRepo, "Awe Some", "awesome", "awe@test.bd", "g0Odpa$$w0rD", user.RoleLibrarian, true)
	createUser(t, app.usrRepo, "Sleepy Head", "sleepy", "sleepy@test.bd", "g0Odpa$$w0rD", user.RoleStaff, false)

	tests := []httpTest{
		{
			name:     "empty body",
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name:     "unknown user",
			body:     []byte(`{"username": "ghost", "password": "lol"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     []byte(`{"username": "awesome", "password": "lol"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     []byte(`{"username": "sleepy", "password": "g0Odpa$$w0rD"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "login with username",
			body:     []byte(`{"username": "awesome", "password": "g0Odpa$$w0rD"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "login with email",
			body:     []byte(`{"username": "awe@test.bd", "password": "g0Odpa$$w0rD"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != http.StatusOK {
					t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
				}
				var res LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("unmarshalling LoginResponse failed: %v", err)
				}
				if res.Token == "" {
					t.Error("expected a token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)

	admin := createUser(t, app.usrRepo, "Admin", "admin", "admin@test.bd", "", user.RoleAdmin, true)
	clerk := createUser(t, app.usrRepo, "Clerk", "clerk", "clerk@test.bd", "", user.RoleStaff, true)

	body := marchallObj(t, user.NewUser{
		Name:            "New Librarian",
		Username:        "books",
		Email:           "books@test.bd",
		Role:            user.RoleLibrarian,
		Password:        "g0Odpa$$w0rD",
		PasswordConfirm: "g0Odpa$$w0rD",
	})

	tests := []httpTest{
		{name: "auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "staff cannot register users", body: body, token: getToken(t, clerk), wantCode: http.StatusForbidden},
		{name: "admin registers a user", body: body, token: getToken(t, admin), wantCode: http.StatusCreated},
		{
			name:     "duplicate username",
			body:     body,
			token:    getToken(t, admin),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != http.StatusCreated {
					t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("unmarshalling User failed: %v", err)
				}
				if usr.Username != "books" || usr.Role != user.RoleLibrarian || !usr.IsActive {
					t.Errorf("unexpected user: %+v", usr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_queryAndDestroy(t *testing.T) {
	app := setup(t)

	admin := createUser(t, app.usrRepo, "Admin", "admin", "admin@test.bd", "", user.RoleAdmin, true)
	clerk := createUser(t, app.usrRepo, "Clerk", "clerk", "clerk@test.bd", "", user.RoleStaff, true)

	t.Run("query", func(t *testing.T) {
		tests := []httpTest{
			{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "staff forbidden", token: getToken(t, clerk), wantCode: http.StatusForbidden},
			{name: "admin gets all", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{admin, clerk})},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, "/v1/users", tt.token)
				app.server.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	t.Run("destroy", func(t *testing.T) {
		tests := []httpTest{
			{name: "staff forbidden", path: "/v1/users/" + clerk.ID, token: getToken(t, clerk), wantCode: http.StatusForbidden},
			{name: "cannot delete self", path: "/v1/users/" + admin.ID, token: getToken(t, admin), wantCode: http.StatusForbidden},
			{name: "unknown user", path: "/v1/users/ghost", token: getToken(t, admin), wantCode: http.StatusNotFound},
			{name: "deleted", path: "/v1/users/" + clerk.ID, token: getToken(t, admin), wantCode: http.StatusNoContent},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodDelete, tt.path, tt.token)
				app.server.ServeHTTP(rec, req)
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
			})
		}
	})
}

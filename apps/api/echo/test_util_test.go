package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/student"
	"github.com/tchoudhury/pathshala/core/user"
	dummydb "github.com/tchoudhury/pathshala/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// stdLogger satisfies core.Logger for tests without reporting anywhere.
type stdLogger struct {
	std *log.Logger
}

func newStdLogger() *stdLogger {
	return &stdLogger{std: log.New(os.Stdout, "TEST : ", log.LstdFlags)}
}

func (l *stdLogger) Enable(bool)                           {}
func (l *stdLogger) Debug(msg string, args ...interface{}) { l.std.Println(msg) }
func (l *stdLogger) Info(msg string, args ...interface{})  { l.std.Println(msg) }
func (l *stdLogger) Warn(msg string, args ...interface{})  { l.std.Println(msg) }
func (l *stdLogger) Error(msg string, args ...interface{}) { l.std.Println(msg) }
func (l *stdLogger) Fatal(msg string, args ...interface{}) { l.std.Fatal(msg) }

type mailerMock struct {
	sent []*core.EmailMessage
}

func (m *mailerMock) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

type testApp struct {
	server  Server
	usrSvc  *user.Service
	stdSvc  *student.Service
	libSvc  *library.Service
	usrRepo user.Repository
	stdRepo student.Repository
	libRepo library.Repository
	mailer  *mailerMock
}

func setup(t *testing.T) *testApp {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	usrRepo := dummydb.NewUserRepository(db)
	stdRepo := dummydb.NewStudentRepository(db)
	libRepo := dummydb.NewLibraryRepository(db)
	mailer := &mailerMock{}

	usrSvc := user.NewService(usrRepo)
	stdSvc := student.NewService(stdRepo, libRepo)
	libSvc := library.NewService(libRepo, stdRepo, mailer)

	server := NewServer(&Options{
		Address:        ":0",
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		StudentSvc:     stdSvc,
		LibrarySvc:     libSvc,
		Logger:         newStdLogger(),
	})

	return &testApp{
		server:  server,
		usrSvc:  usrSvc,
		stdSvc:  stdSvc,
		libSvc:  libSvc,
		usrRepo: usrRepo,
		stdRepo: stdRepo,
		libRepo: libRepo,
		mailer:  mailer,
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func createUser(t *testing.T, repo user.Repository, name, uname, email, pwd, role string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        uname + "-id",
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createStudent(t *testing.T, repo student.Repository, name, rollNo string, isActive bool) student.Student {
	t.Helper()
	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		ID:        rollNo + "-id",
		Name:      name,
		RollNo:    rollNo,
		ClassName: "Class 7",
		Email:     rollNo + "@test.bd",
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return std
}

func createBook(t *testing.T, app *testApp, title, isbn string, qty int) library.Book {
	t.Helper()
	book, err := app.libSvc.CreateBook(context.Background(), library.NewBook{
		Title:    title,
		Author:   "Author",
		ISBN:     isbn,
		Category: "Fiction",
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("createBook() failed: %v", err)
	}
	return book
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

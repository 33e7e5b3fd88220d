package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arjungandhi/addressbook"
)

var fixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, dir string) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := addressbook.NewStore(dir, addressbook.WithLogger(logger))
	return New(logger, store, addressbook.NewValidator(func() time.Time { return fixedNow }))
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func validForm() url.Values {
	return url.Values{
		"name":        {"Alice Smith"},
		"email":       {"alice@example.com"},
		"phoneNumber": {"555-1234"},
		"dateOfBirth": {"1990-06-15"},
	}
}

func TestForm(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	rr := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `action="/contact"`) {
		t.Fatalf("form missing from body: %s", rr.Body.String())
	}
}

func TestSaveFormThenShow(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)

	rr := do(r, postForm(validForm()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	ids, err := addressbook.NewStore(dir).ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one stored contact, got %v", ids)
	}
	id := ids[0]
	if !strings.Contains(rr.Body.String(), id) {
		t.Errorf("saved page does not show id %s", id)
	}

	rr = do(r, httptest.NewRequest(http.MethodGet, "/contact/"+id, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	for _, want := range []string{"Alice Smith", "alice@example.com", "555-1234", "1990-06-15"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("contact page missing %q", want)
		}
	}
}

func TestSaveFormInvalid(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)
	form := validForm()
	form.Set("name", "Al")
	form.Set("dateOfBirth", "2024-06-15")

	rr := do(r, postForm(form))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Name must be between 3 and 64 characters", "Date of birth must not be future", "alice@example.com"} {
		if !strings.Contains(body, want) {
			t.Errorf("form missing %q", want)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("invalid contact reached the store: %d files", len(entries))
	}
}

func TestSaveFormBadDate(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	form := validForm()
	form.Set("dateOfBirth", "15/06/1990")
	rr := do(r, postForm(form))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "YYYY-MM-DD") {
		t.Errorf("expected date format hint, got %s", rr.Body.String())
	}
}

func TestSaveFormStoreFailure(t *testing.T) {
	r := newTestRouter(t, filepath.Join(t.TempDir(), "missing"))
	rr := do(r, postForm(validForm()))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestShowNotFound(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	rr := do(r, httptest.NewRequest(http.MethodGet, "/contact/deadbeef", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Contact info not found") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a1b2c3d4", "e5f6a7b8"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0640); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0750); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, dir)
	rr := do(r, httptest.NewRequest(http.MethodGet, "/contacts", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`/contact/a1b2c3d4`, `/contact/e5f6a7b8`} {
		if !strings.Contains(body, want) {
			t.Errorf("list missing %q", want)
		}
	}
	if strings.Contains(body, "/contact/sub") {
		t.Error("list includes a directory")
	}
}

func TestListMissingDir(t *testing.T) {
	r := newTestRouter(t, filepath.Join(t.TempDir(), "missing"))
	rr := do(r, httptest.NewRequest(http.MethodGet, "/contacts", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAPICreateGetList(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	body := `{"name":"Alice Smith","email":"alice@example.com","phoneNumber":"555-1234","dateOfBirth":"1990-06-15"}`
	req := httptest.NewRequest(http.MethodPost, "/api/contacts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := do(r, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created contactPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if len(created.ID) != addressbook.IDLength {
		t.Fatalf("unexpected id %q", created.ID)
	}

	rr = do(r, httptest.NewRequest(http.MethodGet, "/api/contacts/"+created.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got contactPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "Alice Smith" || got.DateOfBirth != "1990-06-15" || got.PhoneNumber != "555-1234" {
		t.Errorf("unexpected contact %+v", got)
	}

	rr = do(r, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	var list struct {
		Contacts []string `json:"contacts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Contacts) != 1 || list.Contacts[0] != created.ID {
		t.Errorf("unexpected list %v", list.Contacts)
	}
}

func TestAPICreateInvalid(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad email", `{"name":"Alice Smith","email":"nope","phoneNumber":"555-1234","dateOfBirth":"1990-06-15"}`, "email"},
		{"missing dob", `{"name":"Alice Smith","email":"alice@example.com","phoneNumber":"555-1234"}`, "dateOfBirth"},
		{"too young", `{"name":"Alice Smith","email":"alice@example.com","phoneNumber":"555-1234","dateOfBirth":"2020-01-01"}`, "age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(r, httptest.NewRequest(http.MethodPost, "/api/contacts", strings.NewReader(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			var resp struct {
				Fields map[string]string `json:"fields"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Fields[tt.field] == "" {
				t.Errorf("expected error for %s, got %v", tt.field, resp.Fields)
			}
		})
	}

	rr := do(r, httptest.NewRequest(http.MethodPost, "/api/contacts", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON: expected 400, got %d", rr.Code)
	}
}

func TestAPIGetNotFound(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	rr := do(r, httptest.NewRequest(http.MethodGet, "/api/contacts/deadbeef", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAPIGetMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a1b2c3d4"), []byte("junk"), 0640); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, dir)
	rr := do(r, httptest.NewRequest(http.MethodGet, "/api/contacts/a1b2c3d4", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAPIVCardExport(t *testing.T) {
	dir := t.TempDir()
	store := addressbook.NewStore(dir)
	c := &addressbook.Contact{ID: "a1b2c3d4", Name: "Alice Smith", Email: "alice@example.com", PhoneNumber: "555-1234"}
	c.SetDateOfBirth(time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC))
	if err := store.Save(c); err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, dir)

	for _, path := range []string{"/api/contacts/a1b2c3d4.vcf", "/api/contacts/a1b2c3d4?format=vcf", "/api/contacts?format=vcard"} {
		rr := do(r, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/vcard") {
			t.Errorf("%s: content type %q", path, ct)
		}
		if !strings.Contains(rr.Body.String(), "BEGIN:VCARD") || !strings.Contains(rr.Body.String(), "Alice Smith") {
			t.Errorf("%s: unexpected body %s", path, rr.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	rr := do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	r = newTestRouter(t, filepath.Join(t.TempDir(), "missing"))
	rr = do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	do(r, postForm(validForm()))
	do(r, httptest.NewRequest(http.MethodGet, "/contact/deadbeef", nil))

	rr := do(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`addressbook_contact_saves_total{outcome="success"} 1`,
		`addressbook_http_requests_total{method="GET",route="/contact/:id",status="404"} 1`,
		`addressbook_http_requests_total{method="POST",route="/contact",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, t.TempDir())
	rr := do(r, httptest.NewRequest(http.MethodDelete, "/contact/a1b2c3d4", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := New(logger, addressbook.NewStore(t.TempDir()), nil)
	req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
	req.Header.Set("X-Request-Id", "req-42")
	do(r, req)
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("expected request id in log, got %q", buf.String())
	}
}

func TestAPICreateBodyTooLarge(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, dir)
	valid := `{"name":"Alice Smith","email":"alice@example.com","phoneNumber":"555-1234","dateOfBirth":"1990-06-15"}`
	body := strings.Repeat(" ", maxBodyBytes) + valid
	rr := do(r, httptest.NewRequest(http.MethodPost, "/api/contacts", strings.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("oversized request reached the store: %d files", len(entries))
	}
}

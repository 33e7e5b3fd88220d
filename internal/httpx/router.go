// Package httpx serves the address book over HTTP: an HTML form and pages
// for people, a small JSON API for scripts, health and metrics.
package httpx

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arjungandhi/addressbook"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// Router exposes the address book over HTTP.
type Router struct {
	mux             *http.ServeMux
	handler         http.Handler
	logger          *slog.Logger
	store           *addressbook.Store
	validator       *addressbook.Validator
	pages           *template.Template
	registry        *prometheus.Registry
	metricsOnce     sync.Once
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	saveResults     *prometheus.CounterVec
}

// New creates and registers handlers. A nil validator checks against the
// wall clock.
func New(logger *slog.Logger, store *addressbook.Store, validator *addressbook.Validator) *Router {
	if validator == nil {
		validator = addressbook.NewValidator(nil)
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		store:     store,
		validator: validator,
		pages:     template.Must(template.ParseFS(templateFS, "templates/*.html")),
		registry:  prometheus.NewRegistry(),
	}
	r.initMetrics()
	r.routes()
	r.handler = middleware.RequestID(middleware.Recoverer(r.mux))
	return r
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("GET /healthz", r.instrument("/healthz", r.handleHealth))
	r.mux.HandleFunc("GET /{$}", r.instrument("/", r.handleForm))
	r.mux.HandleFunc("POST /contact", r.instrument("/contact", r.handleSaveForm))
	r.mux.HandleFunc("GET /contact/{id}", r.instrument("/contact/:id", r.handleShow))
	r.mux.HandleFunc("GET /contacts", r.instrument("/contacts", r.handleList))
	r.mux.HandleFunc("GET /api/contacts", r.instrument("/api/contacts", r.handleAPIList))
	r.mux.HandleFunc("POST /api/contacts", r.instrument("/api/contacts", r.handleAPICreate))
	r.mux.HandleFunc("GET /api/contacts/{id}", r.instrument("/api/contacts/:id", r.handleAPIGet))
}

type formView struct {
	Values map[string]string
	Errors addressbook.ValidationErrors
}

type contactView struct {
	Contact *addressbook.Contact
	Age     int
}

type listView struct {
	IDs []string
}

type errorView struct {
	Status  int
	Message string
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := r.store.ListAll()
		errCh <- err
	}()
	component := map[string]any{"status": "up", "dir": r.store.Dir()}
	status := "ok"
	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		status = "degraded"
		component = map[string]any{"status": "down", "dir": r.store.Dir(), "error": err.Error()}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": map[string]any{"storage": component},
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleForm(w http.ResponseWriter, req *http.Request) {
	r.render(w, http.StatusOK, "form", formView{Values: map[string]string{}})
}

func (r *Router) handleSaveForm(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		r.renderError(w, http.StatusBadRequest, "invalid form submission")
		return
	}
	in := contactRequest{
		Name:        req.PostForm.Get("name"),
		Email:       req.PostForm.Get("email"),
		PhoneNumber: req.PostForm.Get("phoneNumber"),
		DateOfBirth: req.PostForm.Get("dateOfBirth"),
	}
	c, err := r.createContact(in)
	if err != nil {
		var verrs addressbook.ValidationErrors
		if errors.As(err, &verrs) {
			r.render(w, http.StatusBadRequest, "form", formView{Values: in.values(), Errors: verrs})
			return
		}
		r.renderError(w, http.StatusInternalServerError, "Contact could not be saved")
		return
	}
	r.render(w, http.StatusCreated, "saved", contactView{Contact: c, Age: c.Age()})
}

func (r *Router) handleShow(w http.ResponseWriter, req *http.Request) {
	c, err := r.store.Load(req.PathValue("id"))
	if err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			r.renderError(w, http.StatusNotFound, "Contact info not found")
			return
		}
		r.renderError(w, http.StatusInternalServerError, "Contact info could not be read")
		return
	}
	r.render(w, http.StatusOK, "contact", contactView{Contact: c, Age: c.Age()})
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) {
	ids, err := r.store.ListAll()
	if err != nil {
		r.logger.Error("failed to list contacts", "error", err)
		r.renderError(w, http.StatusInternalServerError, "Contacts could not be listed")
		return
	}
	r.render(w, http.StatusOK, "list", listView{IDs: ids})
}

func (r *Router) handleAPIList(w http.ResponseWriter, req *http.Request) {
	if wantsVCard(req) {
		cs, err := r.store.LoadAll()
		if err != nil {
			r.logger.Error("failed to load contacts", "error", err)
			writeError(w, http.StatusInternalServerError, "contacts could not be listed")
			return
		}
		data, err := addressbook.EncodeCards(cs)
		if err != nil {
			r.logger.Error("failed to encode contacts", "error", err)
			writeError(w, http.StatusInternalServerError, "contacts could not be encoded")
			return
		}
		writeVCard(w, data)
		return
	}
	ids, err := r.store.ListAll()
	if err != nil {
		r.logger.Error("failed to list contacts", "error", err)
		writeError(w, http.StatusInternalServerError, "contacts could not be listed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": ids})
}

func (r *Router) handleAPICreate(w http.ResponseWriter, req *http.Request) {
	var in contactRequest
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := r.createContact(in)
	if err != nil {
		var verrs addressbook.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				if _, ok := fields[fe.Field]; !ok {
					fields[fe.Field] = fe.Message
				}
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid contact", "fields": fields})
			return
		}
		writeError(w, http.StatusInternalServerError, "contact could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, toPayload(c))
}

func (r *Router) handleAPIGet(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	vcf := wantsVCard(req)
	if trimmed, ok := strings.CutSuffix(id, ".vcf"); ok {
		id, vcf = trimmed, true
	}
	c, err := r.store.Load(id)
	if err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "contact could not be read")
		return
	}
	if vcf {
		data, err := addressbook.EncodeCard(addressbook.ContactCard(c))
		if err != nil {
			r.logger.Error("failed to encode contact", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "contact could not be encoded")
			return
		}
		writeVCard(w, data)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(c))
}

// createContact validates the request and saves it under a fresh ID.
func (r *Router) createContact(in contactRequest) (*addressbook.Contact, error) {
	c := addressbook.NewContact(
		strings.TrimSpace(in.Name),
		strings.TrimSpace(in.Email),
		strings.TrimSpace(in.PhoneNumber),
		time.Time{},
	)
	var dateErr *addressbook.FieldError
	if s := strings.TrimSpace(in.DateOfBirth); s != "" {
		dob, err := addressbook.ParseDate(s)
		if err != nil {
			dateErr = &addressbook.FieldError{Field: "dateOfBirth", Message: "Date of birth must be a date (YYYY-MM-DD)"}
		} else {
			c.SetDateOfBirth(dob)
		}
	}
	var verrs addressbook.ValidationErrors
	if err := r.validator.Validate(c); err != nil {
		if !errors.As(err, &verrs) {
			return nil, err
		}
	}
	if dateErr != nil {
		// The unparsed date reads as missing to the validator.
		kept := verrs[:0]
		for _, fe := range verrs {
			if fe.Field != "dateOfBirth" {
				kept = append(kept, fe)
			}
		}
		verrs = append(kept, *dateErr)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	if err := r.store.Save(c); err != nil {
		r.recordSave("failure")
		r.logger.Error("failed to save contact", "id", c.ID, "error", err)
		return nil, err
	}
	r.recordSave("success")
	r.logger.Info("contact saved", "id", c.ID)
	return c, nil
}

type contactRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	DateOfBirth string `json:"dateOfBirth"`
}

func (in contactRequest) values() map[string]string {
	return map[string]string{
		"name":        in.Name,
		"email":       in.Email,
		"phoneNumber": in.PhoneNumber,
		"dateOfBirth": in.DateOfBirth,
	}
}

type contactPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	DateOfBirth string `json:"dateOfBirth"`
	Age         int    `json:"age"`
}

func toPayload(c *addressbook.Contact) contactPayload {
	return contactPayload{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		DateOfBirth: c.BirthDate(),
		Age:         c.Age(),
	}
}

func wantsVCard(req *http.Request) bool {
	switch strings.ToLower(req.URL.Query().Get("format")) {
	case "vcf", "vcard":
		return true
	}
	return false
}

func writeVCard(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

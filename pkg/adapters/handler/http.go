package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 10

var startedAt = time.Now()

type HTTPHandler struct {
	service  ports.LinkService
	baseURL  string
	log      *slog.Logger
	validate *validator.Validate
}

func NewHTTPHandler(service ports.LinkService, baseURL string, log *slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPHandler{
		service:  service,
		baseURL:  baseURL,
		log:      log,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	LongURL    string `json:"long_url" validate:"required,max=4096"`
	CustomCode string `json:"custom_code,omitempty" validate:"omitempty,max=64"`
}

// RenameLinkRequest payload
type RenameLinkRequest struct {
	NewCode string `json:"new_code" validate:"required,max=64"`
}

// LinkResponse is a link plus its public short URL
type LinkResponse struct {
	*domain.Link
	ShortURL string `json:"short_url"`
}

func (h *HTTPHandler) linkResponse(link *domain.Link) LinkResponse {
	return LinkResponse{Link: link, ShortURL: h.baseURL + "/r/" + link.Code}
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	link, err := h.service.Shorten(r.Context(), req.LongURL, req.CustomCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.linkResponse(link))
}

// Redirect to the long URL, counting the visit
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	longURL, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, longURL, http.StatusFound)
}

// Get a link by code, without counting a visit
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.GetLink(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.linkResponse(link))
}

// List Links
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.service.ListLinks(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data := make([]LinkResponse, 0, len(result.Links))
	for i := range result.Links {
		data = append(data, h.linkResponse(&result.Links[i]))
	}

	resp := map[string]interface{}{
		"data":  data,
		"total": result.Total,
		"page":  result.Page,
		"limit": result.Limit,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rename changes the code of a link
func (h *HTTPHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	link, err := h.service.Rename(r.Context(), r.PathValue("code"), req.NewCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.linkResponse(link))
}

// Delete Link
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	if err := h.service.DeleteLink(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the global counters
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Message   string    `json:"message"`
	Database  string    `json:"database"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports whether the store answers
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Message:   "ok",
		Database:  "up",
		Uptime:    time.Since(startedAt).Truncate(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK
	if err := h.service.Health(r.Context()); err != nil {
		h.log.Error("health check failed", "error", err)
		resp.Message, resp.Database = "unhealthy", "down"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type errorBody struct {
	Error string `json:"error"`
}

// decode reads a bounded JSON body into dst and checks its struct tags.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fieldMessage(verrs[0])})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": is required"
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + ": is invalid"
	}
}

// writeError maps the domain error kinds to HTTP statuses. Unexpected errors
// are logged in full and answered with a generic message.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case domain.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case domain.IsExhausted(err):
		h.log.Error("allocation exhausted", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "could not allocate a short code, please retry"})
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

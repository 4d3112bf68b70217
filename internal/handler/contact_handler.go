package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"contact-relay/internal/models"
	"contact-relay/internal/service"
	"contact-relay/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var errTrailingJSON = errors.New("unexpected data after JSON body")

// ContactHandler handles the contact form API
type ContactHandler struct {
	contactService *service.ContactService
	maxBodyBytes   int64
	logger         *zap.Logger
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactService *service.ContactService, maxBodyBytes int64, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		maxBodyBytes:   maxBodyBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the contact routes under the API prefix
func (h *ContactHandler) RegisterRoutes(router chi.Router) {
	router.Get("/", h.Teapot)
	router.Post("/email", h.SendEmail)
}

// Teapot marks the API root. It always answers 418 with no body.
func (h *ContactHandler) Teapot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

// SendEmail relays a contact-form submission to the operator mailbox.
// Accepts JSON or url-encoded bodies with name, email, subject and content.
func (h *ContactHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	clientID := clientAddress(r)

	if err := h.contactService.CheckRateLimit(clientID); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	sub, err := h.decodeSubmission(w, r)
	if err != nil {
		statusCode := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			statusCode = http.StatusRequestEntityTooLarge
		}
		h.respondWithError(w, statusCode, h.contactService.RejectInvalid(clientID, err))
		return
	}

	if err := h.contactService.Submit(r.Context(), clientID, sub); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.logger.Debug("Submission relayed via HTTP",
		util.String("client", clientID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SendEmail"),
	)
}

func (h *ContactHandler) decodeSubmission(w http.ResponseWriter, r *http.Request) (models.EmailSubmission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var sub models.EmailSubmission
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&sub); err != nil {
			return models.EmailSubmission{}, err
		}
		// The body must hold exactly one JSON value.
		if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
			if err == nil {
				err = errTrailingJSON
			}
			return models.EmailSubmission{}, err
		}
		return sub, nil
	}

	if err := r.ParseForm(); err != nil {
		return models.EmailSubmission{}, err
	}
	sub.Name = r.PostForm.Get("name")
	sub.Email = r.PostForm.Get("email")
	sub.Subject = r.PostForm.Get("subject")
	sub.Content = r.PostForm.Get("content")
	return sub, nil
}

// respondWithError writes a bare status. Error detail only goes to the log.
func (h *ContactHandler) respondWithError(w http.ResponseWriter, statusCode int, err error) {
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
		)
	} else {
		h.logger.Debug("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
		)
	}
	w.WriteHeader(statusCode)
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *ContactHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientAddress identifies the caller by the connection address without the
// port. Behind a trusted proxy RealIP has already rewritten RemoteAddr.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
)

// maxFormBytes bounds redeem and status request bodies.
const maxFormBytes = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps a service error onto the admin error envelope.
// Storage faults are logged with the request id and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := classifyServiceError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, status, msg)
}

// classifyServiceError returns the HTTP status and caller-safe message for err.
func classifyServiceError(err error) (int, string) {
	var (
		verr *service.ValidationError
		aerr *service.AuthorizationError
		nerr *service.NotFoundError
		terr *service.TicketStateError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &aerr):
		return http.StatusForbidden, aerr.Error()
	case errors.As(err, &nerr):
		return http.StatusNotFound, nerr.Error()
	case errors.As(err, &terr):
		return http.StatusConflict, terr.Error()
	case errors.Is(err, service.ErrNotTicketOwner):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, service.MsgFault
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// keyParams is the input shared by the redeem and status endpoints.
type keyParams struct {
	Key        string `json:"key"`
	HardwareID string `json:"hwid"`
}

// readKeyParams accepts a JSON body, a form body or query parameters.
// A malformed body is treated as empty so the caller reports the missing key.
func readKeyParams(w http.ResponseWriter, r *http.Request) keyParams {
	var p keyParams
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := readJSON(r, &p); err != nil {
			p = keyParams{}
		}
	} else {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		}
		if err := r.ParseForm(); err == nil {
			p.Key = r.Form.Get("key")
			p.HardwareID = r.Form.Get("hwid")
		}
	}
	if p.Key == "" {
		p.Key = queryString(r, "key")
	}
	if p.HardwareID == "" {
		p.HardwareID = queryString(r, "hwid")
	}
	p.Key = strings.TrimSpace(p.Key)
	p.HardwareID = strings.TrimSpace(p.HardwareID)
	return p
}

// originAddress is the client address as seen after the RealIP middleware.
func originAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

package endpoints

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/identity"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// maxJSONBody bounds request bodies that are decoded as JSON
const maxJSONBody = 64 << 20

func respondWithError(w http.ResponseWriter, code int, payload interface{}) {
	respondWithJSON(w, code, map[string]interface{}{"error": payload})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithMessage(w http.ResponseWriter, msg string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, modelcache.ErrModelNotConfigured):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithErr writes err with the status it maps to. Server errors are
// logged and their details kept out of the response.
func respondWithErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, code, map[string]string{"message": "internal server error"})
		return
	}
	payload := map[string]string{"message": err.Error()}
	var vErr *model.ValidationError
	if errors.As(err, &vErr) && vErr.Field != "" {
		payload["field"] = vErr.Field
		payload["message"] = vErr.Message
	}
	respondWithError(w, code, payload)
}

func badRequest(field, format string, args ...interface{}) error {
	return &model.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// decodeJSON reads the request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return badRequest("", "invalid JSON body: %v", err)
	}
	return nil
}

// pathID parses the uint route variable name
func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest(name, "invalid id %q", raw)
	}
	return uint(id), nil
}

// parseIDList parses ids given as "1,2,3"
func parseIDList(field, raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, badRequest(field, "invalid id %q", part)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func queryBool(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// currentUser returns the identity stored by the JWT middleware
func currentUser(r *http.Request) *identity.Identity {
	id, ok := identity.Get(r.Context())
	if !ok {
		return &identity.Identity{}
	}
	return id
}

// requestIP returns the client address of an unauthenticated request
func requestIP(r *http.Request) string {
	ip := identity.RemoteIPFromRequest(r.RemoteAddr, r.Header.Get("X-Forwarded-For"))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// jsonBody keeps a request body both raw and as a field map, so handlers
// can tell absent fields from zero values.
type jsonBody struct {
	raw    []byte
	fields map[string]interface{}
}

func readBody(w http.ResponseWriter, r *http.Request) (*jsonBody, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, badRequest("", "failed to read body: %v", err)
	}
	body := &jsonBody{raw: raw, fields: map[string]interface{}{}}
	if len(bytes.TrimSpace(raw)) == 0 {
		body.raw = []byte("{}")
		return body, nil
	}
	if err := json.Unmarshal(raw, &body.fields); err != nil {
		return nil, badRequest("", "invalid JSON body: %v", err)
	}
	return body, nil
}

// into decodes the body over v, leaving fields it does not name untouched
func (b *jsonBody) into(v interface{}) error {
	if err := json.Unmarshal(b.raw, v); err != nil {
		return badRequest("", "invalid JSON body: %v", err)
	}
	return nil
}

// idsFromJSON reads a list of ids decoded from a JSON body
func idsFromJSON(field string, raw interface{}) ([]uint, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, badRequest(field, "expected a list of ids")
	}
	ids := make([]uint, 0, len(list))
	for _, item := range list {
		n, ok := item.(float64)
		if !ok || n < 1 || n != float64(uint(n)) {
			return nil, badRequest(field, "invalid id %v", item)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

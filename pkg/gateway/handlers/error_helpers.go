package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/gateway/apierror"
)

func coreErrorFrom(err error, reqID string) (*core.Error, int) {
	return apierror.FromError(err, reqID)
}

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: coreErr})
}

func writeError(w http.ResponseWriter, reqID string, err error) {
	coreErr, status := coreErrorFrom(err, reqID)
	writeCoreErrorJSON(w, reqID, coreErr, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSONBody parses the request body into dst, rejecting unknown
// fields so client typos surface as 400s instead of silent drops.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, reqID string, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeCoreErrorJSON(w, reqID,
			core.NewInvalidRequestError("invalid JSON body: "+err.Error()),
			http.StatusBadRequest)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, reqID string, allow string) {
	w.Header().Set("Allow", allow)
	writeCoreErrorJSON(w, reqID,
		core.NewInvalidRequestError("method not allowed"),
		http.StatusMethodNotAllowed)
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Criser2013/adt-records/internal/drive"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// bearerToken extracts the blob-storage bearer credential from the
// Authorization header. Empty when absent or malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// errStatus maps a classified store/drive error to the HTTP status the
// front end branches on.
func errStatus(err error) int {
	switch drive.KindOf(err) {
	case drive.KindDuplicateIdentity:
		return http.StatusConflict
	case drive.KindNotFound:
		return http.StatusNotFound
	case drive.KindInvalidCredentials:
		return http.StatusUnauthorized
	case drive.KindRateLimited:
		return http.StatusTooManyRequests
	case drive.KindQuotaExceeded, drive.KindSessionExpired,
		drive.KindResumableIncomplete, drive.KindNetwork, drive.KindUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err through the result envelope with the mapped
// status. InvalidCredentials uses the token-expired code so the front
// end re-authenticates instead of showing a generic failure.
func writeError(w http.ResponseWriter, err error) {
	status := errStatus(err)
	if status == http.StatusUnauthorized {
		writeJSON(w, status, FailExpired(err.Error()))
		return
	}
	writeJSON(w, status, Fail(err.Error()))
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmcleod/ironlatch/auth"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// historyLimit parses the ?limit query parameter, clamping to sane bounds.
func historyLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

// LoginHistory handles GET /admin/history/logins.
func (a *API) LoginHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.svc.LoginHistory(historyLimit(r))
	if err != nil {
		writeInternalError(w, "loading login history", err)
		return
	}
	resp := LoginHistoryResponse{Records: make([]LoginHistoryEntry, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, loginHistoryEntry(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// LogoutHistory handles GET /admin/history/logouts.
func (a *API) LogoutHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.svc.LogoutHistory(historyLimit(r))
	if err != nil {
		writeInternalError(w, "loading logout history", err)
		return
	}
	resp := LogoutHistoryResponse{Records: make([]LogoutHistoryEntry, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, logoutHistoryEntry(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func loginHistoryEntry(rec auth.LoginRecord) LoginHistoryEntry {
	return LoginHistoryEntry{
		ID:        rec.ID,
		Email:     rec.Email,
		Success:   rec.Success,
		IP:        rec.IP,
		UAHash:    rec.UAHash,
		Timestamp: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func logoutHistoryEntry(rec auth.LogoutRecord) LogoutHistoryEntry {
	return LogoutHistoryEntry{
		ID:        rec.ID,
		Email:     rec.Email,
		IP:        rec.IP,
		Timestamp: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

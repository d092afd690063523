package collection

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestCustomerSummaryRejectsNonPositiveID(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/customers", newTestHandler().MountCustomerRoutes)

	for _, path := range []string{"/customers/0/summary", "/customers/-3/summary"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, "GET %s", path)
	}
}

func TestDebtRoutesRejectNonPositiveID(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/debts", newTestHandler().MountDebtRoutes)

	body := strings.NewReader(`{"penalty_id": 1}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debts/0/absorb-penalty", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

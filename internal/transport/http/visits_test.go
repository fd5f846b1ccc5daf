package http_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
	"github.com/emeraldgrove/clinic-assistant/internal/domain"
)

type visitsResponse struct {
	Days   int                   `json:"days"`
	Visits []domain.VisitSummary `json:"visits"`
}

func TestUpcomingVisitsRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient())

	rec := doJSON(srv, http.MethodGet, "/api/visits/upcoming", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpcomingVisitsDefaultsToSevenDays(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient())

	rec := doJSON(srv, http.MethodGet, "/api/visits/upcoming", "", adminEmail)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp visitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	assert.NotEmpty(t, resp.Visits)
}

func TestUpcomingVisitsScopesOwnerToOwnRecords(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient())

	rec := doJSON(srv, http.MethodGet, "/api/visits/upcoming?days=365", "", ownerEmail)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp visitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Visits)
	for _, v := range resp.Visits {
		assert.Equal(t, "George Franklin", v.OwnerName)
	}
}

func TestUpcomingVisitsAdminSeesAllOwners(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient())

	rec := doJSON(srv, http.MethodGet, "/api/visits/upcoming?days=365", "", adminEmail)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp visitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	owners := make(map[string]bool)
	for _, v := range resp.Visits {
		owners[v.OwnerName] = true
	}
	assert.Greater(t, len(owners), 1)
}

func TestUpcomingVisitsRejectsBadDays(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient())

	for _, days := range []string{"abc", "0", "-3", "366"} {
		rec := doJSON(srv, http.MethodGet, "/api/visits/upcoming?days="+days, "", adminEmail)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", days)
	}
}

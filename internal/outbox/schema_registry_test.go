package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsLatestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/subjects/user_events-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 17, "version": 2}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "user_events-value", userRegisteredSchema)
	require.NoError(t, err)
	require.Equal(t, 17, id)
}

func TestEnsureSchemaRegistersUnknownSubject(t *testing.T) {
	var registered map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPost:
			require.Equal(t, "/subjects/exercise_events-value/versions", r.URL.Path)
			require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
			_, _ = w.Write([]byte(`{"id": 4}`))
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "exercise_events-value", exerciseLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 4, id)
	require.Equal(t, "JSON", registered["schemaType"])
	require.Equal(t, exerciseLoggedSchema, registered["schema"])
}

func TestEnsureSchemaSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":50001}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "user_events-value", userRegisteredSchema)
	require.ErrorContains(t, err, "status 500")
}

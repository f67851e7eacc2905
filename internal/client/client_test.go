package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, New(server.URL, "tickbox_session", "token-123")
}

func TestRequestsCarrySessionCookie(t *testing.T) {
	var gotCookie string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("tickbox_session"); err == nil {
			gotCookie = cookie.Value
		}
		_ = json.NewEncoder(w).Encode([]Todo{})
	})

	_, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-123", gotCookie)
}

func TestListDecodesTodos(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/todos", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id":"todo-2","title":"Second","completed":true,"ownerId":"usr-1","createdAt":"2026-02-01T10:00:00Z"},
			{"id":"todo-1","title":"First","completed":false,"ownerId":"usr-1","createdAt":"2026-02-01T09:00:00Z"}
		]`))
	})

	todos, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "todo-2", todos[0].ID)
	assert.True(t, todos[0].Completed)
	assert.Equal(t, "First", todos[1].Title)
}

func TestCreateSendsTitleAndDescription(t *testing.T) {
	var gotBody map[string]string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"todo-1","title":"Buy milk","description":"2%","completed":false}`))
	})

	todo, err := c.Create(context.Background(), "Buy milk", "2%")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", gotBody["title"])
	assert.Equal(t, "2%", gotBody["description"])
	assert.Equal(t, "todo-1", todo.ID)
	assert.False(t, todo.Completed)
}

func TestUpdateOmitsAbsentPatchFields(t *testing.T) {
	var rawBody map[string]json.RawMessage
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/todos/todo-1", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &rawBody))
		_, _ = w.Write([]byte(`{"id":"todo-1","title":"Buy milk","completed":true}`))
	})

	completed := true
	_, err := c.Update(context.Background(), "todo-1", Patch{Completed: &completed})
	require.NoError(t, err)

	// Only the present field crosses the wire; the server must not see
	// nulls for the others.
	assert.Contains(t, rawBody, "completed")
	assert.NotContains(t, rawBody, "title")
	assert.NotContains(t, rawBody, "description")
}

func TestDeleteSucceeds(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"message":"Todo deleted successfully"}`))
	})

	assert.NoError(t, c.Delete(context.Background(), "todo-1"))
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","error":"Todo not found"}`))
	})

	err := c.Delete(context.Background(), "todo-unknown")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "Todo not found", apiErr.Message)
}

func TestMeReturnsNilWithoutSession(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":null}`))
	})

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestMeDecodesIdentity(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":"usr-1","name":"Avery","avatar":"https://img/a.png","email":"avery@example.com"}}`))
	})

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Avery", user.Name)
}

package twitter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeed/authkit/api"
	"github.com/ecodeed/authkit/auth"
	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/provider/twitter"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) (*twitter.Adapter, *credstore.Memory) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := credstore.NewMemory()
	client := api.New(srv.URL, store)
	return twitter.New(client, store), store
}

func TestAdapter_Begin(t *testing.T) {
	t.Parallel()

	t.Run("persists the breadcrumb before returning", func(t *testing.T) {
		t.Parallel()
		a, store := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/auth/social/twitter/login/", r.URL.Path)
			_, _ = w.Write([]byte(`{"auth_url": "https://x.com/authorize?c=1", "state": "st-9"}`))
		})

		authURL, err := a.Begin(context.Background(), "/courses/42")
		require.NoError(t, err)
		assert.Equal(t, "https://x.com/authorize?c=1", authURL)

		st, err := store.TakeState(context.Background(), auth.ProviderTwitter)
		require.NoError(t, err)
		assert.Equal(t, "st-9", st.State)
		assert.Equal(t, "/courses/42", st.ReturnPath)
		assert.False(t, st.CreatedAt.IsZero())
	})

	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		a, store := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := a.Begin(context.Background(), "/")
		require.ErrorIs(t, err, api.ErrServerUnavailable)

		_, err = store.TakeState(context.Background(), auth.ProviderTwitter)
		assert.ErrorIs(t, err, credstore.ErrNotFound, "no breadcrumb on a failed begin")
	})
}

func TestAdapter_Complete(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, store *credstore.Memory, state string) {
		t.Helper()
		require.NoError(t, store.SaveState(context.Background(), auth.ProviderTwitter, credstore.RedirectState{
			Provider:   auth.ProviderTwitter,
			State:      state,
			ReturnPath: "/courses/42",
		}))
	}

	t.Run("forwards code and state", func(t *testing.T) {
		t.Parallel()
		a, store := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/auth/social/twitter/callback/", r.URL.Path)

			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "code-1", body["code"])
			assert.Equal(t, "st-9", body["state"])

			_, _ = w.Write([]byte(`{"user": {"id": 7, "email": "ana@example.com"}, "access": "a", "refresh": "r"}`))
		})
		seed(t, store, "st-9")

		payload, returnPath, err := a.Complete(context.Background(), "code-1", "st-9")
		require.NoError(t, err)
		assert.Equal(t, "/courses/42", returnPath)
		assert.Equal(t, "a", payload.Access)

		_, err = store.TakeState(context.Background(), auth.ProviderTwitter)
		assert.ErrorIs(t, err, credstore.ErrNotFound, "breadcrumb is consumed")
	})

	t.Run("state mismatch", func(t *testing.T) {
		t.Parallel()
		a, store := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("exchange must not run on a state mismatch")
		})
		seed(t, store, "st-expected")

		_, _, err := a.Complete(context.Background(), "code-1", "st-forged")
		assert.ErrorIs(t, err, auth.ErrMalformedResponse)
	})

	t.Run("missing code", func(t *testing.T) {
		t.Parallel()
		a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("exchange must not run without a code")
		})

		_, _, err := a.Complete(context.Background(), "", "st-9")
		assert.ErrorIs(t, err, auth.ErrMalformedResponse)
	})

	t.Run("missing breadcrumb is survivable", func(t *testing.T) {
		t.Parallel()
		a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"user": {"id": 7, "email": "ana@example.com"}, "access": "a", "refresh": "r"}`))
		})

		payload, returnPath, err := a.Complete(context.Background(), "code-1", "st-9")
		require.NoError(t, err, "the backend re-verifies state; a lost breadcrumb only loses the return path")
		assert.Empty(t, returnPath)
		assert.Equal(t, "a", payload.Access)
	})
}

func TestAdapter_Name(t *testing.T) {
	t.Parallel()
	a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, auth.ProviderTwitter, a.Name())
}

package backend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/slots"
)

const testSecretHex = "0a1b2c3d4e5f"

func newTestHTTP(t *testing.T, h http.HandlerFunc) *HTTP {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	b, err := NewHTTP(HTTPConfig{BaseURL: server.URL, APIKey: "key-id:" + testSecretHex, Timeout: time.Second})
	require.NoError(t, err)
	return b
}

// checkAuth verifies the token the way the recipe service would.
func checkAuth(t *testing.T, r *http.Request) {
	secret, _ := hex.DecodeString(testSecretHex)
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	tok, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		assert.Equal(t, "key-id", tok.Header["kid"])
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("/v1/"))
	if assert.NoError(t, err) {
		assert.True(t, tok.Valid)
	}
	assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
}

func TestHTTPGenerateMany(t *testing.T) {
	req := planner.PlanRequest{
		Days: map[slots.Day][]slots.SlotKey{slots.Wednesday: {slots.LunchMain, slots.DinnerMain}},
		Filters: map[slots.Day]filters.Effective{
			slots.Wednesday: {Categories: []string{"vegan"}, MaxTimeDinner: filters.IntPtr(30)},
		},
		Ratio:              70,
		ExcludeIngredients: []string{"Tofu"},
	}

	t.Run("Success", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			checkAuth(t, r)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/plans", r.URL.Path)

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]any{"2": []any{"lunch_main", "dinner_main"}}, body["days"])
			assert.Equal(t, float64(70), body["ratio"])

			fmt.Fprintln(w, `{"plan": {"2": {
				"dinner_main": {"id": "r1", "name": "Linsen-Dal", "total_time": 1800, "source": "managed"},
				"lunch_main": null
			}}}`)
		})

		plan, err := b.GenerateMany(context.Background(), req)
		require.NoError(t, err)
		require.Contains(t, plan, slots.Wednesday)
		assert.Equal(t, "r1", plan[slots.Wednesday][slots.DinnerMain].ID)
		assert.Equal(t, "30 Min.", plan[slots.Wednesday][slots.DinnerMain].TotalTimeString())
		got, ok := plan[slots.Wednesday][slots.LunchMain]
		assert.True(t, ok)
		assert.Nil(t, got)
	})

	malformed := map[string]string{
		"NotJSON":     `<html>oops</html>`,
		"UnknownDay":  `{"plan": {"9": {}}}`,
		"UnknownSlot": `{"plan": {"0": {"brunch": null}}}`,
	}
	for name, payload := range malformed {
		t.Run(name, func(t *testing.T) {
			b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, payload)
			})
			_, err := b.GenerateMany(context.Background(), req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "malformed response")
		})
	}

	t.Run("ServerError", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := b.GenerateMany(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestHTTPGenerateOne(t *testing.T) {
	req := planner.SlotRequest{
		Day:              slots.Friday,
		Slot:             slots.LunchStarter,
		ExcludeRecipeIDs: []string{"r1", "r2"},
	}

	t.Run("Success", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			checkAuth(t, r)
			assert.Equal(t, "/api/v1/recipes/pick", r.URL.Path)
			var body planner.SlotRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, slots.LunchStarter, body.Slot)
			assert.Equal(t, []string{"r1", "r2"}, body.ExcludeRecipeIDs)
			fmt.Fprintln(w, `{"recipe": {"id": "r3", "name": "Gazpacho"}}`)
		})
		r, err := b.GenerateOne(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "Gazpacho", r.Name)
	})

	t.Run("NothingMatched", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"recipe": null}`)
		})
		r, err := b.GenerateOne(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("RecipeWithoutID", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"recipe": {"name": "Gazpacho"}}`)
		})
		_, err := b.GenerateOne(context.Background(), req)
		require.Error(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request should not be sent")
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.GenerateOne(ctx, req)
		require.Error(t, err)
	})
}

func TestHTTPSuggestIngredients(t *testing.T) {
	b := newTestHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "to", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		fmt.Fprintln(w, `{"ingredients": ["Tofu", "Tomate"]}`)
	})
	names, err := b.SuggestIngredients(context.Background(), "to", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tofu", "Tomate"}, names)
}

func TestNewHTTP(t *testing.T) {
	cases := map[string]HTTPConfig{
		"NoBaseURL":   {APIKey: "id:" + testSecretHex},
		"NoSeparator": {BaseURL: "http://x", APIKey: "justakey"},
		"BadHex":      {BaseURL: "http://x", APIKey: "id:zz"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewHTTP(cfg)
			require.Error(t, err)
		})
	}

	t.Run("NoKey", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			fmt.Fprintln(w, `{"recipe": null}`)
		}))
		defer server.Close()

		b, err := NewHTTP(HTTPConfig{BaseURL: server.URL + "/", RPS: 100})
		require.NoError(t, err)
		_, err = b.GenerateOne(context.Background(), planner.SlotRequest{Day: slots.Monday, Slot: slots.DinnerMain})
		require.NoError(t, err)
	})
}

// Package backend implements the recipe backends the planner controller
// calls: a remote HTTP service, an LLM, and decorators that enrich and
// instrument them.
package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/recipe"
	"cookidoo-planner/internal/slots"
)

// HTTPConfig configures the remote recipe service client.
type HTTPConfig struct {
	BaseURL string
	// APIKey is "id:secret" with a hex encoded secret. Empty disables auth.
	APIKey  string
	Timeout time.Duration
	// RPS limits outgoing requests per second. Zero means unlimited.
	RPS    float64
	Logger *slog.Logger
}

// HTTP talks to a recipe service that does the actual picking.
type HTTP struct {
	baseURL    string
	keyID      string
	secret     []byte
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewHTTP creates a client for the recipe service.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &HTTP{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     cfg.Logger,
	}
	if cfg.RPS > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}
	if cfg.APIKey != "" {
		id, secretHex, ok := strings.Cut(cfg.APIKey, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid api key format: expected id:secret")
		}
		secret, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret hex: %w", err)
		}
		h.keyID, h.secret = id, secret
	}
	return h, nil
}

type planResponse struct {
	Plan map[string]map[string]*recipe.Recipe `json:"plan"`
}

type pickResponse struct {
	Recipe *recipe.Recipe `json:"recipe"`
}

type suggestResponse struct {
	Ingredients []string `json:"ingredients"`
}

// GenerateMany asks the service for a full week.
func (h *HTTP) GenerateMany(ctx context.Context, req planner.PlanRequest) (planner.Plan, error) {
	var resp planResponse
	if err := h.do(ctx, http.MethodPost, "/api/v1/plans", req, &resp); err != nil {
		return nil, err
	}
	plan := make(planner.Plan, len(resp.Plan))
	for dayKey, entries := range resp.Plan {
		day, err := strconv.Atoi(dayKey)
		if err != nil || !slots.Day(day).Valid() {
			return nil, fmt.Errorf("malformed response: unknown day %q", dayKey)
		}
		row := make(map[slots.SlotKey]*recipe.Recipe, len(entries))
		for slotKey, r := range entries {
			slot, err := slots.ParseSlot(slotKey)
			if err != nil {
				return nil, fmt.Errorf("malformed response: %w", err)
			}
			row[slot] = r
		}
		plan[slots.Day(day)] = row
	}
	return plan, nil
}

// GenerateOne asks the service for a single slot. A null recipe means
// nothing matched.
func (h *HTTP) GenerateOne(ctx context.Context, req planner.SlotRequest) (*recipe.Recipe, error) {
	var resp pickResponse
	if err := h.do(ctx, http.MethodPost, "/api/v1/recipes/pick", req, &resp); err != nil {
		return nil, err
	}
	if resp.Recipe != nil && resp.Recipe.ID == "" {
		return nil, fmt.Errorf("malformed response: recipe without id")
	}
	return resp.Recipe, nil
}

// SuggestIngredients returns ingredient names matching a prefix.
func (h *HTTP) SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	var resp suggestResponse
	if err := h.do(ctx, http.MethodGet, "/api/v1/ingredients/suggest?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Ingredients, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.secret != nil {
		token, err := h.createToken()
		if err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	h.logger.Debug("backend request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

// createToken generates a short-lived JWT for the service.
func (h *HTTP) createToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "/v1/",
	})
	token.Header["kid"] = h.keyID

	return token.SignedString(h.secret)
}

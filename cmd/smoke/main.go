// Command smoke exercises the auth flow of a running API: register, login,
// profile, refresh rotation and logout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"storefront.org/internal/obs"
)

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type session struct {
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(ctx context.Context, method, path, token string, body any) (envelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return envelope{}, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if !env.Success {
		return env, fmt.Errorf("%s %s: %d %s", method, path, env.StatusCode, env.Message)
	}
	return env, nil
}

func (c *client) session(ctx context.Context, path string, body any) (session, error) {
	env, err := c.call(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return session{}, err
	}
	var s session
	return s, json.Unmarshal(env.Data, &s)
}

func main() {
	log := obs.Logger()
	base := os.Getenv("STOREFRONT_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: base + "/api/v1", http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString()[:8])
	creds := map[string]string{"email": email, "password": "smoke-password", "name": "Smoke"}
	if _, err := c.session(ctx, "/auth/register", creds); err != nil {
		log.WithError(err).Fatal("register")
	}
	s, err := c.session(ctx, "/auth/login", creds)
	if err != nil {
		log.WithError(err).Fatal("login")
	}
	if _, err := c.call(ctx, http.MethodGet, "/auth/me", s.Tokens.AccessToken, nil); err != nil {
		log.WithError(err).Fatal("me")
	}
	rotated, err := c.session(ctx, "/auth/refresh", map[string]string{"refreshToken": s.Tokens.RefreshToken})
	if err != nil {
		log.WithError(err).Fatal("refresh")
	}
	if _, err := c.session(ctx, "/auth/refresh", map[string]string{"refreshToken": s.Tokens.RefreshToken}); err == nil {
		log.Fatal("reused refresh token was accepted")
	}
	if _, err := c.call(ctx, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": rotated.Tokens.RefreshToken}); err != nil {
		log.WithError(err).Fatal("logout")
	}
	if _, err := c.call(ctx, http.MethodGet, "/products", "", nil); err != nil {
		log.WithError(err).Fatal("products")
	}
	fmt.Printf("smoke test passed: %s\n", email)
}

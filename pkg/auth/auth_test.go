package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

func apply(t *testing.T, cfg Config) (headers, query map[string]string) {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	headers = map[string]string{}
	query = map[string]string{}
	h.Apply(headers, query)
	return headers, query
}

func TestApplyNone(t *testing.T) {
	headers, query := apply(t, Config{})
	if len(headers) != 0 || len(query) != 0 {
		t.Errorf("none auth modified the request: %v %v", headers, query)
	}
}

func TestApplyAPIKeyHeader(t *testing.T) {
	headers, _ := apply(t, Config{Type: "apiKey", Name: "X-API-Key", In: "header", Value: "k1"})
	if headers["X-API-Key"] != "k1" {
		t.Errorf("headers = %v", headers)
	}
}

func TestApplyAPIKeyQuery(t *testing.T) {
	headers, query := apply(t, Config{Type: "apiKey", Name: "api_key", In: "query", Value: "k2"})
	if query["api_key"] != "k2" || len(headers) != 0 {
		t.Errorf("headers = %v, query = %v", headers, query)
	}
}

func TestApplyBasic(t *testing.T) {
	headers, _ := apply(t, Config{Type: "basic", Username: "u", Password: "p"})
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	if headers["Authorization"] != want {
		t.Errorf("Authorization = %q", headers["Authorization"])
	}
}

func TestApplyBearerAndOAuth2(t *testing.T) {
	for _, typ := range []string{"bearer", "oauth2"} {
		headers, _ := apply(t, Config{Type: typ, Token: "tok"})
		if headers["Authorization"] != "Bearer tok" {
			t.Errorf("%s: Authorization = %q", typ, headers["Authorization"])
		}
	}
}

func TestNewRejectsBadConfigs(t *testing.T) {
	bad := []Config{
		{Type: "apiKey"},
		{Type: "apiKey", Name: "k", Value: "v", In: "body"},
		{Type: "basic"},
		{Type: "bearer"},
		{Type: "wizardry"},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); !errors.Is(err, ErrBadConfig) {
			t.Errorf("New(%+v) = %v, want ErrBadConfig", cfg, err)
		}
	}
}

func TestFromSecuritySchemes(t *testing.T) {
	cfg := FromSecuritySchemes(map[string]map[string]any{
		"api_key": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
	})
	if cfg.Type != "apiKey" || cfg.Name != "X-API-Key" || cfg.In != "header" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg = FromSecuritySchemes(map[string]map[string]any{
		"bearerAuth": {"type": "http", "scheme": "bearer"},
	})
	if cfg.Type != "bearer" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg = FromSecuritySchemes(nil)
	if cfg.Type != "none" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestNilHandlerIsNoop(t *testing.T) {
	var h *Handler
	headers := map[string]string{}
	h.Apply(headers, map[string]string{})
	if len(headers) != 0 {
		t.Errorf("nil handler modified headers: %v", headers)
	}
	if h.Type() != "none" {
		t.Errorf("Type = %q", h.Type())
	}
}

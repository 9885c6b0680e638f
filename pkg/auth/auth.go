// Package auth applies credential material to outgoing requests. The
// supported types mirror what OpenAPI security schemes can declare:
// apiKey (header or query), basic, bearer and a pre-fetched oauth2
// access token.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Config selects an auth type and its credentials, usually decoded
// from the run configuration file.
type Config struct {
	Type     string `yaml:"type"`     // none, apiKey, basic, bearer, oauth2
	Name     string `yaml:"name"`     // apiKey: header or query parameter name
	In       string `yaml:"in"`       // apiKey: "header" or "query"
	Value    string `yaml:"value"`    // apiKey value
	Username string `yaml:"username"` // basic
	Password string `yaml:"password"` // basic
	Token    string `yaml:"token"`    // bearer / oauth2 access token
}

// ErrBadConfig marks an auth configuration that cannot be applied.
var ErrBadConfig = errors.New("invalid auth config")

// Handler injects credentials into request headers and query values.
type Handler struct {
	cfg Config
}

// New validates the configuration and returns a handler. An empty or
// "none" type yields a handler that applies nothing.
func New(cfg Config) (*Handler, error) {
	switch cfg.Type {
	case "", "none":
	case "apiKey":
		if cfg.Name == "" || cfg.Value == "" {
			return nil, fmt.Errorf("%w: apiKey requires name and value", ErrBadConfig)
		}
		if cfg.In != "header" && cfg.In != "query" {
			return nil, fmt.Errorf("%w: apiKey 'in' must be header or query, got %q", ErrBadConfig, cfg.In)
		}
	case "basic":
		if cfg.Username == "" {
			return nil, fmt.Errorf("%w: basic requires username", ErrBadConfig)
		}
	case "bearer", "oauth2":
		if cfg.Token == "" {
			return nil, fmt.Errorf("%w: %s requires token", ErrBadConfig, cfg.Type)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadConfig, cfg.Type)
	}
	return &Handler{cfg: cfg}, nil
}

// Apply adds the configured credentials to the given header and query
// maps in place.
func (h *Handler) Apply(headers, query map[string]string) {
	if h == nil {
		return
	}
	switch h.cfg.Type {
	case "apiKey":
		if h.cfg.In == "query" {
			query[h.cfg.Name] = h.cfg.Value
		} else {
			headers[h.cfg.Name] = h.cfg.Value
		}
	case "basic":
		cred := base64.StdEncoding.EncodeToString([]byte(h.cfg.Username + ":" + h.cfg.Password))
		headers["Authorization"] = "Basic " + cred
	case "bearer", "oauth2":
		headers["Authorization"] = "Bearer " + h.cfg.Token
	}
}

// Type reports the configured auth type, "none" when unset.
func (h *Handler) Type() string {
	if h == nil || h.cfg.Type == "" {
		return "none"
	}
	return h.cfg.Type
}

// FromSecuritySchemes picks a Config skeleton matching the first
// recognizable scheme an OpenAPI document declares. Credentials still
// have to be filled in by the caller.
func FromSecuritySchemes(schemes map[string]map[string]any) Config {
	for _, scheme := range schemes {
		typ, _ := scheme["type"].(string)
		switch typ {
		case "apiKey":
			name, _ := scheme["name"].(string)
			in, _ := scheme["in"].(string)
			return Config{Type: "apiKey", Name: name, In: in}
		case "http":
			hs, _ := scheme["scheme"].(string)
			if strings.EqualFold(hs, "basic") {
				return Config{Type: "basic"}
			}
			return Config{Type: "bearer"}
		case "basic":
			return Config{Type: "basic"}
		case "oauth2":
			return Config{Type: "oauth2"}
		}
	}
	return Config{Type: "none"}
}

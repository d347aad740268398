// Package client talks to the user management backend over REST. It
// implements the ProfileService, DirectoryAPI, and FormSchemaService
// contracts consumed by the session manager, the admin directory, and the
// registration form.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	authsphere "github.com/authsphere/go-authsphere"
)

const (
	tokenPath      = "/token"
	profilePath    = "/users/me"
	usersPath      = "/users/"
	logsPath       = "/users/logs"
	formFieldsPath = "/form-fields"

	// User scoped admin routes carry a doubled prefix; the backend mounts
	// the admin router under the users router.
	userActionPathFmt = "/users/users/%s"
)

// Config holds backend connection configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api/v1".
	BaseURL string

	// Tokens supplies the bearer token for authenticated calls. Optional;
	// calls fall back to anonymous requests when absent or empty.
	Tokens authsphere.TokenSource

	HTTPClient *http.Client
	UserAgent  string
}

// Client is a REST client over the backend API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a backend client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-authsphere"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		config:     cfg,
		httpClient: client,
	}
}

// ExchangeCredentials implements authsphere.ProfileService. The backend
// speaks the OAuth2 password form on its token route.
func (c *Client) ExchangeCredentials(ctx context.Context, username, password string) (string, error) {
	data := url.Values{
		"username": {username},
		"password": {password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+tokenPath, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", authsphere.WrapNetworkError(err, "token exchange request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", authsphere.WrapNetworkError(err, "token exchange read failed")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", authsphere.ErrInvalidCredentials
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError("token", resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", decodeError("token", err)
	}

	if tokenResp.AccessToken == "" {
		return "", goerrors.New("token response missing access token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return tokenResp.AccessToken, nil
}

// LoadProfile implements authsphere.ProfileService. The explicit token lets
// the session resolve a profile for a token it has not committed yet.
func (c *Client) LoadProfile(ctx context.Context, token string) (*authsphere.Identity, error) {
	var identity authsphere.Identity
	if err := c.doJSON(ctx, http.MethodGet, profilePath, nil, &identity, token); err != nil {
		return nil, err
	}
	return &identity, nil
}

// ListUsers implements authsphere.DirectoryAPI.
func (c *Client) ListUsers(ctx context.Context) ([]authsphere.Identity, error) {
	var users []authsphere.Identity
	if err := c.doJSON(ctx, http.MethodGet, usersPath, nil, &users, ""); err != nil {
		return nil, err
	}
	return users, nil
}

// ListAuditLog implements authsphere.DirectoryAPI.
func (c *Client) ListAuditLog(ctx context.Context) ([]authsphere.AuditLogEntry, error) {
	var entries []authsphere.AuditLogEntry
	if err := c.doJSON(ctx, http.MethodGet, logsPath, nil, &entries, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

// RegisterUser implements authsphere.DirectoryAPI and the self-service
// registration contract.
func (c *Client) RegisterUser(ctx context.Context, req authsphere.Registration) (*authsphere.Identity, error) {
	var identity authsphere.Identity
	if err := c.doJSON(ctx, http.MethodPost, usersPath, req, &identity, ""); err != nil {
		return nil, err
	}
	return &identity, nil
}

// DeleteUser implements authsphere.DirectoryAPI.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf(userActionPathFmt, id), nil, nil, "")
}

// AnonymizeUser implements authsphere.DirectoryAPI.
func (c *Client) AnonymizeUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf(userActionPathFmt+"/anonymize", id), nil, nil, "")
}

// UpdateRoles implements authsphere.DirectoryAPI. The list is a full
// replacement, never a merge.
func (c *Client) UpdateRoles(ctx context.Context, id string, roles []authsphere.Role) (*authsphere.Identity, error) {
	if roles == nil {
		roles = []authsphere.Role{}
	}

	payload := rolesUpdateRequest{Roles: roles}
	var identity authsphere.Identity
	if err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf(userActionPathFmt+"/roles", id), payload, &identity, ""); err != nil {
		return nil, err
	}
	return &identity, nil
}

// FormFields implements authsphere.FormSchemaService. Only active fields are
// returned; the backend owns the schema.
func (c *Client) FormFields(ctx context.Context) ([]authsphere.FormFieldDescriptor, error) {
	var fields []authsphere.FormFieldDescriptor
	if err := c.doJSON(ctx, http.MethodGet, formFieldsPath, nil, &fields, ""); err != nil {
		return nil, err
	}
	return fields, nil
}

// doJSON runs one request against the API: JSON body in, JSON body out,
// bearer token from the explicit override or the configured source.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, token string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return decodeError(path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token == "" {
		token = c.bearerToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return authsphere.WrapNetworkError(err, method+" "+path+" request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return authsphere.WrapNetworkError(err, method+" "+path+" read failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(path, resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return decodeError(path, err)
	}

	return nil
}

func (c *Client) bearerToken() string {
	if c.config.Tokens == nil {
		return ""
	}
	token, err := c.config.Tokens.Get()
	if err != nil {
		return ""
	}
	return token
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type rolesUpdateRequest struct {
	Roles []authsphere.Role `json:"roles"`
}

// errorEnvelope is the backend's error body. Detail is a plain string for
// most errors and a structured list for validation failures.
type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

type validationItem struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// apiError maps an error response onto the shared error taxonomy.
func apiError(operation string, status int, body []byte) error {
	detail, items := parseErrorBody(body)

	switch status {
	case http.StatusUnauthorized:
		return authsphere.ErrNotAuthenticated
	case http.StatusForbidden:
		return authsphere.ErrPermissionDenied
	case http.StatusConflict:
		return &authsphere.ConflictError{
			Kind:   authsphere.ClassifyConflict(detail),
			Detail: detail,
		}
	case http.StatusNotFound:
		return goerrors.New(messageOr(detail, "resource not found"), goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	case http.StatusUnprocessableEntity:
		return validationError(items, detail)
	}

	return goerrors.New(
		fmt.Sprintf("%s failed with status %d: %s", operation, status, messageOr(detail, "no detail")),
		goerrors.CategoryInternal,
	).WithCode(status)
}

func validationError(items []validationItem, detail string) error {
	if len(items) == 0 {
		return authsphere.ValidationErrors{{Message: messageOr(detail, "invalid payload")}}
	}

	verrs := make(authsphere.ValidationErrors, 0, len(items))
	for _, item := range items {
		verrs = append(verrs, authsphere.FieldError{
			Field:   fieldFromLoc(item.Loc),
			Message: item.Msg,
		})
	}
	return verrs
}

// fieldFromLoc picks the field name out of a validation location like
// ["body", "username"].
func fieldFromLoc(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok && s != "body" {
			return s
		}
	}
	return ""
}

func parseErrorBody(body []byte) (string, []validationItem) {
	if len(body) == 0 {
		return "", nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body)), nil
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		return detail, nil
	}

	var items []validationItem
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		return "", items
	}

	return strings.TrimSpace(string(envelope.Detail)), nil
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func decodeError(operation string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode "+operation+" response")
}

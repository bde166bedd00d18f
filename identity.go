package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// SignInPayload carries credentials for POST /auth/signin.
type SignInPayload struct {
	Identifier string `json:"identifier"`
	Credential string `json:"credential"`
}

// Validate will run validation rules
func (p SignInPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(
			&p.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&p.Credential,
			validation.Required,
		),
	)
}

// SignInResult is the provisional answer from a successful sign-in. The user
// object is never trusted as-is; the machine re-verifies before fully
// adopting the new identity.
type SignInResult struct {
	User  *UserProfile `json:"user"`
	Token string       `json:"token,omitempty"`
}

// SignUpPayload carries registration fields for POST /auth/signup.
type SignUpPayload struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// Validate will run validation rules
func (p SignUpPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&p.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Credential, validation.Required, validation.Length(10, 100)),
	)
}

type SignUpResult struct {
	User       *UserProfile `json:"user"`
	IsVerified bool         `json:"is_verified"`
}

// IdentityClient talks to the identity backend over its small HTTP contract.
// The session cookie rides in the injected jar; client code never reads it.
type IdentityClient struct {
	baseURL string
	http    *http.Client
	logger  Logger
}

var _ IdentityAPI = (*IdentityClient)(nil)

// NewIdentityClient builds a client rooted at baseURL using the Store's
// cookie jar.
func NewIdentityClient(baseURL string, jar http.CookieJar) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		logger:  defLogger{},
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

func (c *IdentityClient) WithLogger(logger Logger) *IdentityClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient swaps the underlying client, keeping the jar unless the
// replacement carries its own.
func (c *IdentityClient) WithHTTPClient(client *http.Client) *IdentityClient {
	if client != nil {
		if client.Jar == nil {
			client.Jar = c.http.Jar
		}
		c.http = client
	}
	return c
}

func (c *IdentityClient) SignIn(ctx context.Context, payload SignInPayload) (*SignInResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-in payload").
			WithCode(goerrors.CodeBadRequest)
	}

	res := &SignInResult{}
	status, detail, err := c.postJSON(ctx, "/auth/signin", payload, res)
	if err != nil {
		return nil, signinTransport(err)
	}

	switch {
	case status == http.StatusOK:
		return res, nil
	case status >= 400 && status < 500:
		return nil, credentialsRejected(status, detail)
	default:
		return nil, ErrSigninUnavailable.WithMetadata(map[string]any{
			"status": status,
		})
	}
}

func (c *IdentityClient) SignUp(ctx context.Context, payload SignUpPayload) (*SignUpResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-up payload").
			WithCode(goerrors.CodeBadRequest)
	}

	res := &SignUpResult{}
	status, detail, err := c.postJSON(ctx, "/auth/signup", payload, res)
	if err != nil {
		return nil, signinTransport(err)
	}

	switch {
	case status == http.StatusOK:
		return res, nil
	case status >= 400 && status < 500:
		return nil, credentialsRejected(status, detail)
	default:
		return nil, ErrSigninUnavailable.WithMetadata(map[string]any{
			"status": status,
		})
	}
}

// Me asks the backend "who am I right now". It is the only source of truth.
func (c *IdentityClient) Me(ctx context.Context) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/users/me", nil)
	if err != nil {
		return nil, verifyTransport(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, verifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		user := &UserProfile{}
		if err := decodeUserBody(resp.Body, user); err != nil {
			// A 200 with a body we cannot parse is indistinguishable from a
			// proxy hiccup; treat it as transient, not as a rejection.
			return nil, verifyTransport(err)
		}
		return user, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrSessionRejected
	default:
		return nil, ErrVerifyTransient.WithMetadata(map[string]any{
			"status": resp.StatusCode,
		})
	}
}

// SignOut fires the best-effort server-side invalidation. Failure is
// non-fatal to the client-side logout.
func (c *IdentityClient) SignOut(ctx context.Context, reason string) error {
	payload := map[string]string{"reason": reason}
	status, _, err := c.postJSON(ctx, "/auth/logout", payload, nil)
	if err != nil {
		return verifyTransport(err)
	}
	if status != http.StatusOK {
		return goerrors.New("server-side logout failed", goerrors.CategoryOperation).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{"status": status})
	}
	return nil
}

// postJSON posts a JSON payload and, on non-200 responses, extracts the
// backend's `{detail}` message so callers can attach it to their errors.
func (c *IdentityClient) postJSON(ctx context.Context, path string, body, out any) (int, string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, "", err
		}
		return resp.StatusCode, "", nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	io.Copy(io.Discard, resp.Body)
	detail := struct {
		Detail string `json:"detail"`
	}{}
	if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
		return resp.StatusCode, detail.Detail, nil
	}
	return resp.StatusCode, "", nil
}

// decodeUserBody accepts both `{user}` envelopes and bare profile objects,
// the two shapes the backend has shipped over time.
func decodeUserBody(r io.Reader, user *UserProfile) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	envelope := struct {
		User *UserProfile `json:"user"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.User != nil && envelope.User.ID != "" {
		*user = *envelope.User
		return nil
	}

	if err := json.Unmarshal(raw, user); err != nil {
		return err
	}
	if user.ID == "" {
		return fmt.Errorf("malformed identity body")
	}
	return nil
}

func verifyTransport(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "transient verification failure").
		WithTextCode(textCodeVerifyTransient).
		WithCode(goerrors.CodeInternal)
}

// credentialsRejected decorates the sentinel with the backend's detail
// message so UIs can surface it. errors.Is against ErrCredentialsRejected
// still matches.
func credentialsRejected(status int, detail string) error {
	meta := map[string]any{"status": status}
	if detail != "" {
		meta["detail"] = detail
	}
	return ErrCredentialsRejected.WithMetadata(meta)
}

func signinTransport(err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Category == goerrors.CategoryValidation {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "sign-in temporarily unavailable").
		WithTextCode(textCodeSigninUnavailable).
		WithCode(goerrors.CodeInternal)
}

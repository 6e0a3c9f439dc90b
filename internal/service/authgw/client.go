// Package authgw is the client for the external auth gateway that verifies
// credentials and permission grants. The gateway owns all credential
// validation; this package only carries the question over and maps the
// answer into the local error taxonomy.
package authgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialKind distinguishes the two accepted credential forms.
type CredentialKind string

// Accepted credential kinds.
const (
	// CredentialBearer is a signed bearer token from the Authorization
	// header. Signature verification stays with the gateway.
	CredentialBearer CredentialKind = "bearer"

	// CredentialAPIKey is an opaque key from the X-API-Key header. Whether
	// it carries system or user scope is decided by the gateway.
	CredentialAPIKey CredentialKind = "api_key"
)

// Credential is an extracted, unverified client credential.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// CredentialFromRequest extracts the credential from a request. A bearer
// token takes precedence over an API key when both are present.
func CredentialFromRequest(r *http.Request) (Credential, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return Credential{}, fmt.Errorf("%w: malformed Authorization header", ErrAuth)
		}
		return Credential{Kind: CredentialBearer, Value: token}, nil
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return Credential{Kind: CredentialAPIKey, Value: key}, nil
	}

	return Credential{}, fmt.Errorf("%w: no credential provided", ErrAuth)
}

// Decision is the gateway's answer to a verification request.
type Decision struct {
	// Allowed reports whether the credential holds the requested right.
	Allowed bool

	// Principal is the identity the credential resolves to, used for
	// task ownership scoping.
	Principal string

	// SystemScope marks credentials that may act across all principals.
	SystemScope bool
}

// Client verifies a credential against a (service, resource, action)
// permission triple.
type Client interface {
	// Verify asks the gateway whether the credential grants the given
	// action on the resource. Insufficient rights yield ErrPermission;
	// every other failure, including transport errors, yields ErrAuth.
	Verify(ctx context.Context, cred Credential, service, resource, action string) (*Decision, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the gateway at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type verifyRequest struct {
	CredentialKind string `json:"credential_kind"`
	Credential     string `json:"credential"`
	Service        string `json:"service"`
	Resource       string `json:"resource"`
	Action         string `json:"action"`
}

type verifyResponse struct {
	Allowed     bool   `json:"allowed"`
	Principal   string `json:"principal"`
	SystemScope bool   `json:"system_scope"`
	Message     string `json:"message"`
}

// Verify implements Client over the gateway's POST /api/v1/verify endpoint.
func (c *HTTPClient) Verify(ctx context.Context, cred Credential, service, resource, action string) (*Decision, error) {
	body, err := json.Marshal(verifyRequest{
		CredentialKind: string(cred.Kind),
		Credential:     cred.Value,
		Service:        service,
		Resource:       resource,
		Action:         action,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode verification request", ErrAuth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build verification request", ErrAuth)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("auth gateway unreachable", "error", err)
		return nil, fmt.Errorf("%w: auth gateway unreachable", ErrAuth)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: credential rejected", ErrAuth)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s on %s", ErrPermission, action, resource, service)
	default:
		c.logger.Error("unexpected auth gateway status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: unexpected gateway status %d", ErrAuth, resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("%w: malformed gateway response", ErrAuth)
	}

	if !vr.Allowed {
		return nil, fmt.Errorf("%w: %s %s on %s", ErrPermission, action, resource, service)
	}

	d := &Decision{
		Allowed:     true,
		Principal:   vr.Principal,
		SystemScope: vr.SystemScope,
	}

	// Older gateway deployments omit the principal for bearer tokens; fall
	// back to the token's subject claim. The gateway already verified the
	// signature, so reading claims unverified here is safe.
	if d.Principal == "" && cred.Kind == CredentialBearer {
		if sub, err := bearerSubject(cred.Value); err == nil {
			d.Principal = sub
		}
	}
	if d.Principal == "" && !d.SystemScope {
		return nil, fmt.Errorf("%w: gateway decision carries no principal", ErrAuth)
	}

	return d, nil
}

// bearerSubject extracts the subject claim from a JWT without verifying
// its signature.
func bearerSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return sub, nil
}

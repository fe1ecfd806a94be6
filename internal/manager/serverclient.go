package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/rules"
)

// ServerClient is C6's HTTP client for the §6.4 server surface, modeled on
// the teacher's media.Client: a thin wrapper that treats response bodies as
// opaque and leaves wire-format ownership to the server side.
type ServerClient struct {
	baseURL   string
	http      *http.Client
	jwtSecret string
}

// NewServerClient returns a ServerClient against baseURL with the given
// per-request timeout (§5: "carry a caller-supplied timeout, default the
// heartbeat interval").
func NewServerClient(baseURL string, timeout time.Duration) *ServerClient {
	if timeout <= 0 {
		timeout = DefaultHeartbeatInterval
	}
	return &ServerClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// nonceClaims is the ADDED replay-protection envelope (see DESIGN.md and
// SPEC_FULL.md's domain-stack wiring): an HS256 JWT carrying a random
// nonce and timestamp, grounded on the teacher's auth.Claims shape.
type nonceClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// signNonce returns a signed JWT if a secret is configured, or "" otherwise
// — online validation degrades gracefully to the plain spec surface when no
// secret is set.
func (c *ServerClient) signNonce() (string, error) {
	if c.jwtSecret == "" {
		return "", nil
	}
	claims := nonceClaims{
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.jwtSecret))
}

// Validate POSTs a multipart form to {endpoint}/licenses/validate carrying
// licenseKey, validationParams, and the raw envelope as licenseFile (§4.6,
// §6.4). A non-2xx response becomes an error carrying the body as text.
func (c *ServerClient) Validate(ctx context.Context, licenseKey string, params rules.Params, envelope []byte) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: encode validation params: %v", errs.ErrHeartbeat, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("licenseKey", licenseKey)
	_ = w.WriteField("validationParams", string(paramsJSON))

	if nonce, err := c.signNonce(); err != nil {
		return fmt.Errorf("%w: sign validation nonce: %v", errs.ErrHeartbeat, err)
	} else if nonce != "" {
		_ = w.WriteField("nonce", nonce)
	}

	fw, err := w.CreateFormFile("licenseFile", "license.bin")
	if err != nil {
		return fmt.Errorf("%w: build multipart form: %v", errs.ErrHeartbeat, err)
	}
	if _, err := fw.Write(envelope); err != nil {
		return fmt.Errorf("%w: write envelope to form: %v", errs.ErrHeartbeat, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close multipart form: %v", errs.ErrHeartbeat, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/licenses/validate", &body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errs.ErrHeartbeat, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: validate request: %v", errs.ErrHeartbeat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: validate returned %d: %s", errs.ErrHeartbeat, resp.StatusCode, string(msg))
	}
	return nil
}

// Heartbeat POSTs JSON {licenseKey, machineId} to {endpoint}/licenses/heartbeat.
func (c *ServerClient) Heartbeat(ctx context.Context, licenseKey, machineID string) error {
	payload, _ := json.Marshal(map[string]string{"licenseKey": licenseKey, "machineId": machineID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/licenses/heartbeat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errs.ErrHeartbeat, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: heartbeat request: %v", errs.ErrHeartbeat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: unknown activation", errs.ErrHeartbeat)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: heartbeat returned %d", errs.ErrHeartbeat, resp.StatusCode)
	}
	return nil
}

// Disconnect POSTs to {endpoint}/licenses/disconnect?licenseKey=...&hardwareId=...
func (c *ServerClient) Disconnect(ctx context.Context, licenseKey, hardwareID string) error {
	u := c.baseURL + "/licenses/disconnect?" + url.Values{
		"licenseKey": {licenseKey},
		"hardwareId": {hardwareID},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errs.ErrHeartbeat, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: disconnect request: %v", errs.ErrHeartbeat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: unknown activation", errs.ErrHeartbeat)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: disconnect returned %d", errs.ErrHeartbeat, resp.StatusCode)
	}
	return nil
}

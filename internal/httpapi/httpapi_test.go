package httpapi_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/activation"
	"github.com/clk-66/licensecore/internal/codec"
	"github.com/clk-66/licensecore/internal/httpapi"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store/memstore"
)

func newTestServer(t *testing.T, cfg httpapi.Config) (*httptest.Server, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	st := memstore.New()
	st.SeedProduct("acme-suite")

	eng, err := activation.NewEngine(st, priv, &priv.PublicKey)
	require.NoError(t, err)

	r := httpapi.NewRouter(eng, nil, cfg)
	return httptest.NewServer(r), &priv.PublicKey
}

func generateLicense(t *testing.T, srv *httptest.Server, pub *rsa.PublicKey, body map[string]any) *license.License {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/licenses/generate", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope bytes.Buffer
	_, err = envelope.ReadFrom(resp.Body)
	require.NoError(t, err)

	l, err := codec.New(nil).Decode(envelope.Bytes(), pub)
	require.NoError(t, err)
	return l
}

func postMultipartValidate(t *testing.T, srv *httptest.Server, licenseKey string, envelope []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("licenseKey", licenseKey)
	if envelope != nil {
		fw, err := w.CreateFormFile("licenseFile", "license.bin")
		require.NoError(t, err)
		_, _ = fw.Write(envelope)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/licenses/validate", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestGenerateThenValidate(t *testing.T) {
	srv, pub := newTestServer(t, httpapi.Config{})
	defer srv.Close()

	l := generateLicense(t, srv, pub, map[string]any{
		"productId": "acme-suite",
		"type":      license.Standard,
		"issuer":    "Acme",
		"issuedTo":  "John Doe",
	})

	resp := postMultipartValidate(t, srv, l.LicenseKey, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActivateRevokeConcurrentLicense(t *testing.T) {
	srv, pub := newTestServer(t, httpapi.Config{})
	defer srv.Close()

	l := generateLicense(t, srv, pub, map[string]any{
		"productId":           "acme-suite",
		"type":                license.Concurrent,
		"issuer":              "Acme",
		"issuedTo":            "Jane",
		"maxActiveUsersCount": 1,
	})

	actBody, _ := json.Marshal(map[string]string{"licenseKey": l.LicenseKey, "hardwareId": "machine-1"})
	actResp, err := http.Post(srv.URL+"/licenses/activate", "application/json", bytes.NewReader(actBody))
	require.NoError(t, err)
	defer actResp.Body.Close()
	require.Equal(t, http.StatusOK, actResp.StatusCode)

	secondBody, _ := json.Marshal(map[string]string{"licenseKey": l.LicenseKey, "hardwareId": "machine-2"})
	secondResp, err := http.Post(srv.URL+"/licenses/activate", "application/json", bytes.NewReader(secondBody))
	require.NoError(t, err)
	defer secondResp.Body.Close()
	require.Equal(t, http.StatusConflict, secondResp.StatusCode)

	revokeResp, err := http.Post(srv.URL+"/licenses/revoke", "application/json", bytes.NewReader(actBody))
	require.NoError(t, err)
	defer revokeResp.Body.Close()
	require.Equal(t, http.StatusNoContent, revokeResp.StatusCode)

	thirdResp, err := http.Post(srv.URL+"/licenses/activate", "application/json", bytes.NewReader(secondBody))
	require.NoError(t, err)
	defer thirdResp.Body.Close()
	require.Equal(t, http.StatusOK, thirdResp.StatusCode)
}

func TestHeartbeatUnknownActivationReturns404(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Config{})
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"licenseKey": "nope", "machineId": "m1"})
	resp, err := http.Post(srv.URL+"/licenses/heartbeat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Config{APIKey: "secret"})
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"licenseKey": "x", "hardwareId": "y"})
	resp, err := http.Post(srv.URL+"/licenses/revoke", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/licenses/revoke", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "secret")
	req.Header.Set("Content-Type", "application/json")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NotEqual(t, http.StatusUnauthorized, resp2.StatusCode)
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/clk-66/licensecore/internal/activation"
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
)

type handlers struct {
	engine    *activation.Engine
	jwtSecret string
	nonces    *nonceSet
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, envelope []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(status)
	_, _ = w.Write(envelope)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusToHTTP maps activation.ValidationStatus to the HTTP status §6.4
// implies ("200 ⇒ Valid; 4xx ⇒ Invalid with a diagnostic body").
func statusToHTTP(s activation.ValidationStatus) int {
	switch s {
	case activation.ValidationValid:
		return http.StatusOK
	case activation.ValidationNotFound:
		return http.StatusNotFound
	case activation.ValidationExpired:
		return http.StatusForbidden
	case activation.ValidationRevoked:
		return http.StatusForbidden
	case activation.ValidationMaximumActivationsReached:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// validationParamsWire mirrors rules.Params' JSON field names (no json
// tags on that struct means the default field-name encoding), so the
// manager's outbound validationParams payload round-trips here without a
// shared wire-format package between client and server code.
type validationParamsWire struct {
	UserName            string `json:"UserName"`
	HardwareId          string `json:"HardwareId"`
	MaxActiveUsersCount int    `json:"MaxActiveUsersCount"`
}

// validate implements POST /licenses/validate (§6.4): a multipart form
// carrying licenseKey, validationParams, and the raw envelope as
// licenseFile. A nonce field, if present, is verified and consumed to
// reject replayed validate calls (SPEC_FULL.md's ADDED replay protection).
func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	licenseKey := r.FormValue("licenseKey")
	if licenseKey == "" {
		writeErr(w, http.StatusBadRequest, errs.ErrBadRequest)
		return
	}

	if nonce := r.FormValue("nonce"); nonce != "" {
		if err := h.checkNonce(nonce); err != nil {
			writeErr(w, http.StatusUnauthorized, err)
			return
		}
	}

	var wire validationParamsWire
	if raw := r.FormValue("validationParams"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &wire)
	}

	var envelopeBytes []byte
	if file, _, err := r.FormFile("licenseFile"); err == nil {
		defer file.Close()
		envelopeBytes, _ = io.ReadAll(file)
	}

	result := h.engine.Validate(r.Context(), licenseKey, envelopeBytes, activation.ValidateParams{
		UserName:   wire.UserName,
		HardwareId: wire.HardwareId,
	})

	if result.Status != activation.ValidationValid {
		msg := "invalid"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		http.Error(w, msg, statusToHTTP(result.Status))
		return
	}
	w.WriteHeader(http.StatusOK)
}

type heartbeatRequest struct {
	LicenseKey string `json:"licenseKey"`
	MachineID  string `json:"machineId"`
}

// heartbeat implements POST /licenses/heartbeat (§6.4): JSON body, 200 on
// success, 404 for an unknown activation.
func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if !h.engine.Heartbeat(r.Context(), req.LicenseKey, req.MachineID) {
		http.Error(w, `{"error":"unknown activation"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// disconnect implements POST /licenses/disconnect?licenseKey=...&hardwareId=... (§6.4).
func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	licenseKey := r.URL.Query().Get("licenseKey")
	hardwareID := r.URL.Query().Get("hardwareId")

	result := h.engine.DisconnectConcurrent(r.Context(), licenseKey, hardwareID)
	if result.Status != activation.ValidationValid {
		http.Error(w, `{"error":"unknown activation"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type activateRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
}

// activate implements POST /licenses/activate (§6.4): returns a fresh
// envelope on success, or an error on a seat-cap/validation failure.
func (h *handlers) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	result := h.engine.Activate(r.Context(), req.LicenseKey, req.HardwareID)
	if result.Status != activation.ValidationValid {
		msg := "activation failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		http.Error(w, msg, statusToHTTP(result.Status))
		return
	}

	envelope, err := h.engine.EncodeRow(result.Row)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope)
}

type revokeRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
}

// revoke implements POST /licenses/revoke (§6.4).
func (h *handlers) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	result := h.engine.Revoke(r.Context(), req.LicenseKey, req.HardwareID)
	if result.Status != activation.ValidationValid {
		msg := "revoke failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		http.Error(w, msg, statusToHTTP(result.Status))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renewRequest struct {
	LicenseKey    string    `json:"licenseKey"`
	NewExpiration time.Time `json:"newExpiration"`
}

// renew implements POST /licenses/renew (§6.4): Subscription-only, returns
// a fresh envelope on success.
func (h *handlers) renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	result := h.engine.Renew(r.Context(), req.LicenseKey, req.NewExpiration)
	if result.Status != activation.ValidationValid {
		msg := "renewal failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		http.Error(w, msg, statusToHTTP(result.Status))
		return
	}
	writeEnvelope(w, http.StatusOK, result.Envelope)
}

// generateRequest is the JSON body for POST /licenses/generate (§6.4),
// mirroring activation.GenerateRequest.
type generateRequest struct {
	ProductID            string                     `json:"productId"`
	Type                 license.Type               `json:"type"`
	Issuer               string                     `json:"issuer"`
	IssuedTo             string                     `json:"issuedTo"`
	ExpirationDate       *time.Time                 `json:"expirationDate,omitempty"`
	HardwareID           string                     `json:"hardwareId,omitempty"`
	MaxActiveUsersCount  int                        `json:"maxActiveUsersCount,omitempty"`
	SubscriptionStart    time.Time                  `json:"subscriptionStart,omitempty"`
	SubscriptionDuration time.Duration              `json:"subscriptionDuration,omitempty"`
	TrialPeriod          time.Duration              `json:"trialPeriod,omitempty"`
	FeatureIDs           []string                   `json:"featureIds,omitempty"`
	Features             map[string]license.Feature `json:"features,omitempty"`
}

// generate implements POST /licenses/generate (§6.4).
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	envelope, err := h.engine.Generate(r.Context(), activation.GenerateRequest{
		ProductID:            req.ProductID,
		Type:                 req.Type,
		Issuer:               req.Issuer,
		IssuedTo:             req.IssuedTo,
		ExpirationDate:       req.ExpirationDate,
		HardwareID:           req.HardwareID,
		MaxActiveUsersCount:  req.MaxActiveUsersCount,
		SubscriptionStart:    req.SubscriptionStart,
		SubscriptionDuration: req.SubscriptionDuration,
		TrialPeriod:          req.TrialPeriod,
		FeatureIDs:           req.FeatureIDs,
		Features:             req.Features,
	})
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope)
}

package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

// GenerateRequest describes a new license to mint.
type GenerateRequest struct {
	ProductID             string
	Type                  license.Type
	Issuer                string
	IssuedTo              string // UserName for Standard/Subscription/Floating/Concurrent
	ExpirationDate        *time.Time
	HardwareID            string        // NodeLocked
	MaxActiveUsersCount   int           // Floating/Concurrent
	SubscriptionStart     time.Time     // Subscription
	SubscriptionDuration  time.Duration // Subscription
	TrialPeriod           time.Duration // Trial
	FeatureIDs            []string      // must all exist in the product catalogue
	Features              map[string]license.Feature
}

// Generate validates the request's preconditions, persists a new License
// row (and its feature bindings), and returns a freshly signed envelope.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) ([]byte, error) {
	exists, err := e.store.ProductExists(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: unknown product %q", errs.ErrBadRequest, req.ProductID)
	}

	if len(req.FeatureIDs) > 0 {
		allExist, err := e.store.FeaturesExistAll(ctx, req.FeatureIDs)
		if err != nil {
			return nil, err
		}
		if !allExist {
			return nil, fmt.Errorf("%w: one or more requested features do not exist", errs.ErrBadRequest)
		}
	}

	if req.ExpirationDate != nil && !req.ExpirationDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiration_date must be in the future", errs.ErrBadRequest)
	}

	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown license type %q", errs.ErrBadRequest, req.Type)
	}

	row := &store.LicenseRow{
		ID:        newID(),
		Key:       newID(),
		Type:      req.Type,
		IssuedOn:  time.Now().UTC(),
		Issuer:    req.Issuer,
		Status:    store.StatusActive,
		IssuedTo:  req.IssuedTo,
		ProductID: req.ProductID,
		Features:  req.Features,
	}
	if row.Features == nil {
		row.Features = map[string]license.Feature{}
	}

	switch req.Type {
	case license.Standard:
		row.ExpirationDate = req.ExpirationDate
	case license.Trial:
		if req.TrialPeriod <= 0 {
			return nil, fmt.Errorf("%w: trial_period must be > 0", errs.ErrBadRequest)
		}
		row.TrialPeriod = req.TrialPeriod
		exp := row.IssuedOn.Add(req.TrialPeriod)
		row.ExpirationDate = &exp
	case license.NodeLocked:
		row.ExpirationDate = req.ExpirationDate
		hwID := req.HardwareID
		row.HardwareID = &hwID
	case license.Subscription:
		row.SubscriptionStartDate = &req.SubscriptionStart
		exp := req.SubscriptionStart.Add(req.SubscriptionDuration)
		row.SubscriptionExpiryDate = &exp
		row.ExpirationDate = &exp
	case license.Floating, license.Concurrent:
		row.ExpirationDate = req.ExpirationDate
		max := req.MaxActiveUsersCount
		row.MaxActiveUsersCount = &max
		row.ActiveUsersCount = 0
	}

	if err := e.store.InsertLicense(ctx, row); err != nil {
		return nil, err
	}

	for _, featureID := range req.FeatureIDs {
		// Both stores only confirm here that the license exists: no
		// (product, feature) row is enabled, repointed or created. Feature
		// values reach the license through row.Features, written by
		// InsertLicense; a FeatureIDs entry without a Features value gets none.
		if err := e.store.UpsertLicenseFeature(ctx, req.ProductID, featureID, row.ID, true); err != nil {
			return nil, err
		}
	}

	return e.codec.Encode(row.ToLicense(), e.priv)
}

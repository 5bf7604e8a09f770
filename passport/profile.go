package passport

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provider identifies which identity provider a user signed in with.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
	ProviderWallet Provider = "wallet"
	ProviderEmail  Provider = "email"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderApple, ProviderWallet, ProviderEmail:
		return true
	}
	return false
}

// UserProfile is the snapshot returned by the user-profile endpoint.
type UserProfile struct {
	ID          string    `json:"id" validate:"required"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Picture     string    `json:"picture"`
	Banner      string    `json:"banner"`
	EthAddress  *string   `json:"ethAddress"`
	Provider    Provider  `json:"provider" validate:"required,oneof=google apple wallet email"`
	CreatedAt   time.Time `json:"createdAt"`
}

// createdAtLayouts are tried in order. Timestamps without a zone are UTC.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts ISO-8601 createdAt values that are not strict
// RFC 3339. An empty createdAt leaves the zero time.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	type plain UserProfile
	aux := struct {
		*plain
		CreatedAt string `json:"createdAt"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.CreatedAt = time.Time{}
	if aux.CreatedAt == "" {
		return nil
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, aux.CreatedAt); err == nil {
			p.CreatedAt = t
			return nil
		}
	}
	return fmt.Errorf("createdAt %q is not an ISO-8601 timestamp", aux.CreatedAt)
}

// TokenPair is an access token together with the refresh token that can
// replace it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (t TokenPair) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

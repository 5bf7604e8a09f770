package config

import "time"

const (
	DefaultBaseURL = "https://api.bedrockpassport.com"

	baseURLVar        = "PASSPORT_BASE_URL"
	refreshURLVar     = "PASSPORT_REFRESH_URL"
	issuerVar         = "PASSPORT_ISSUER"
	clientIDVar       = "PASSPORT_CLIENT_ID"
	requestTimeoutVar = "PASSPORT_REQUEST_TIMEOUT"
	logoutTimeoutVar  = "PASSPORT_LOGOUT_TIMEOUT"
)

type PassportConfig interface {
	GetBaseURL() string
	GetRefreshURL() string
	GetIssuer() string
	GetClientID() string
	GetRequestTimeout() time.Duration
	GetLogoutTimeout() time.Duration
}

type Passport struct {
	file *FileConfig
}

var _ PassportConfig = Passport{}

func (p Passport) GetBaseURL() string {
	return GetEnv(baseURLVar, orDefault(p.file.Passport.BaseURL, DefaultBaseURL))
}

// GetRefreshURL is the token endpoint used for the refresh_token grant. It is
// not part of the published API so it has no default.
func (p Passport) GetRefreshURL() string {
	return GetEnv(refreshURLVar, p.file.Passport.RefreshURL)
}

// GetIssuer enables OIDC discovery of the token endpoint when no refresh URL is set.
func (p Passport) GetIssuer() string {
	return GetEnv(issuerVar, p.file.Passport.Issuer)
}

func (p Passport) GetClientID() string {
	return GetEnv(clientIDVar, p.file.Passport.ClientID)
}

func (p Passport) GetRequestTimeout() time.Duration {
	return GetDurationEnv(requestTimeoutVar, orDefault(p.file.Passport.RequestTimeout, 10*time.Second))
}

func (p Passport) GetLogoutTimeout() time.Duration {
	return GetDurationEnv(logoutTimeoutVar, orDefault(p.file.Passport.LogoutTimeout, 5*time.Second))
}

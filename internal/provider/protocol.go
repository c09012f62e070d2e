// Package provider describes the wire protocol of the provider's self-service API.
// Both the CLI client and the sandbox server build on these definitions.
package provider

import (
	"net/http"
	"time"
	_ "time/tzdata" // Europe/Warsaw must resolve on hosts without a zoneinfo database
)

// Endpoint paths, relative to the API base URL, in the order a session calls them.
const (
	PathConfig     = "/config"
	PathLoginState = "/login/state"
	PathIdentity   = "/identity"
	PathLogin      = "/login"
	PathUsage      = "/usage"
	PathLogout     = "/logout"
)

// Wire values.
const (
	LoginStateLoggedOut = "LOGGED_OUT"
	LoginStateLoggedIn  = "LOGGED_IN"

	ResultOK = "OK"

	// ErrorInvalidCredentials is the "error" field the login endpoint returns
	// together with BadCredentialsStatus when the card/password pair is rejected.
	ErrorInvalidCredentials = "INVALID_CREDENTIALS"
	BadCredentialsStatus    = http.StatusUnauthorized
)

// ExpirationLayout is the provider's format for plan expiration dates,
// e.g. "11.01.2017 godzina 20:26". There is no zone; see Location.
const ExpirationLayout = "02.01.2006 godzina 15:04"

// ICCIDLength is the number of digits in a card identifier.
const ICCIDLength = 10

// Location is the civil timezone the provider reports wall-clock times in.
var Location = mustLoadLocation("Europe/Warsaw")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ConfigResponse is the body of GET /config.
type ConfigResponse struct {
	Key  string `json:"key"`
	Salt string `json:"salt"`
}

// LoginStateResponse is the body of GET /login/state.
type LoginStateResponse struct {
	State string `json:"state"`
}

// IdentityResponse is the body of GET /identity.
type IdentityResponse struct {
	ICCID string `json:"iccid"`
}

// LoginRequest is the body of POST /login. Both fields are base64 ciphertexts.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ResultResponse is the body of a successful POST /login or POST /logout.
type ResultResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is the body the API sends with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UsageResponse is the body of GET /usage. ActivePackage is null when the
// subscriber has no data package running.
type UsageResponse struct {
	ActivePackage *Package `json:"activePackage"`
}

// Package holds the plan counters. Limits are in mebibytes.
type Package struct {
	Period               int    `json:"period"`
	ExpirationDate       string `json:"expirationDate"`
	TotalLimit           int64  `json:"totalLimit"`
	TotalLimitsUsed      int64  `json:"totalLimitsUsed"`
	TotalLimitsRemaining int64  `json:"totalLimitsRemaining"`
}

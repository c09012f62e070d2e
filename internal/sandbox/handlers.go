// Package sandbox implements a local stand-in for the provider's self-service
// API. It speaks the same wire protocol as the real service and is used for
// development and in tests.
package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"
	"github.com/zhaobenny/datatop/internal/credential"
	"github.com/zhaobenny/datatop/internal/provider"
)

// Options configures a Server
type Options struct {
	Accounts AccountStore
	// DeviceICCID is the card the identity endpoint reports, as the real
	// service does for the SIM the request comes from
	DeviceICCID string
	// Key and Salt are published by the config endpoint; random when empty
	Key, Salt string
	// Sessions defaults to scs.New() with an in-memory store
	Sessions *scs.SessionManager
	// LoginLimiter rate limits the login endpoint when set
	LoginLimiter *IPRateLimiter
}

// Server holds dependencies for the sandbox HTTP handlers
type Server struct {
	accounts AccountStore
	device   string
	key      string
	salt     string
	cipher   *credential.Cipher
	sessions *scs.SessionManager
	limiter  *IPRateLimiter
}

// New creates a Server
func New(opts Options) (*Server, error) {
	if opts.Accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}

	s := &Server{
		accounts: opts.Accounts,
		device:   opts.DeviceICCID,
		key:      opts.Key,
		salt:     opts.Salt,
		sessions: opts.Sessions,
		limiter:  opts.LoginLimiter,
	}

	var err error
	if s.key == "" {
		if s.key, err = GenerateKeyMaterial(16); err != nil {
			return nil, err
		}
	}
	if s.salt == "" {
		if s.salt, err = GenerateKeyMaterial(8); err != nil {
			return nil, err
		}
	}
	if s.sessions == nil {
		s.sessions = scs.New()
	}

	s.cipher, err = credential.New([]byte(s.key), []byte(s.salt))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Routes returns the API handler with session and security middleware applied
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	var login http.Handler = http.HandlerFunc(s.Login)
	if s.limiter != nil {
		login = s.limiter.Limit(login)
	}

	mux.HandleFunc("GET "+provider.PathConfig, s.Config)
	mux.HandleFunc("GET "+provider.PathLoginState, s.LoginState)
	mux.HandleFunc("GET "+provider.PathIdentity, s.Identity)
	mux.Handle("POST "+provider.PathLogin, login)
	mux.Handle("GET "+provider.PathUsage, s.RequireLogin(http.HandlerFunc(s.Usage)))
	mux.HandleFunc("POST "+provider.PathLogout, s.Logout)

	return SecurityHeaders(s.sessions.LoadAndSave(mux))
}

// Config publishes the key material clients encrypt credentials with
func (s *Server) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, provider.ConfigResponse{Key: s.key, Salt: s.salt})
}

// LoginState reports whether the caller's session is logged in
func (s *Server) LoginState(w http.ResponseWriter, r *http.Request) {
	state := provider.LoginStateLoggedOut
	if s.sessions.GetString(r.Context(), sessionICCIDKey) != "" {
		state = provider.LoginStateLoggedIn
	}
	writeJSON(w, http.StatusOK, provider.LoginStateResponse{State: state})
}

// Identity reports the device's card number
func (s *Server) Identity(w http.ResponseWriter, r *http.Request) {
	if s.device == "" {
		jsonError(w, "NO_DEVICE", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, provider.IdentityResponse{ICCID: s.device})
}

// Login checks an encrypted card/password pair and logs the session in
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req provider.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "MALFORMED_REQUEST", http.StatusBadRequest)
		return
	}

	iccid, err := s.cipher.DecryptString(req.Login)
	if err != nil {
		jsonError(w, "MALFORMED_REQUEST", http.StatusBadRequest)
		return
	}
	password, err := s.cipher.DecryptString(req.Password)
	if err != nil {
		jsonError(w, "MALFORMED_REQUEST", http.StatusBadRequest)
		return
	}

	account, err := s.accounts.GetAccount(iccid)
	if err != nil {
		log.Error().Err(err).Msg("sandbox: account lookup failed")
		jsonError(w, "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	if account == nil || !CheckPassword(password, account.PasswordHash) {
		log.Info().Str("iccid", iccid).Msg("sandbox: login rejected")
		jsonError(w, provider.ErrorInvalidCredentials, provider.BadCredentialsStatus)
		return
	}

	if err := s.sessions.RenewToken(r.Context()); err != nil {
		jsonError(w, "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	s.sessions.Put(r.Context(), sessionICCIDKey, account.ICCID)

	log.Info().Str("iccid", iccid).Msg("sandbox: login accepted")
	writeJSON(w, http.StatusOK, provider.ResultResponse{Result: provider.ResultOK})
}

// Usage returns the logged in card's active package
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	iccid := s.sessions.GetString(r.Context(), sessionICCIDKey)

	account, err := s.accounts.GetAccount(iccid)
	if err != nil || account == nil {
		jsonError(w, "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	var resp provider.UsageResponse
	if p := account.Plan; p != nil {
		resp.ActivePackage = &provider.Package{
			Period:               p.Period,
			ExpirationDate:       p.Expiration.In(provider.Location).Format(provider.ExpirationLayout),
			TotalLimit:           p.TotalMiB,
			TotalLimitsUsed:      p.UsedMiB,
			TotalLimitsRemaining: p.TotalMiB - p.UsedMiB,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the caller's session
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(r.Context()); err != nil {
		jsonError(w, "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, provider.ResultResponse{Result: provider.ResultOK})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, code string, status int) {
	writeJSON(w, status, provider.ErrorResponse{Error: code})
}

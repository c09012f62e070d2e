// Package session runs the provider's login protocol: a fixed sequence of
// calls where each response is validated before the next call is made.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/zhaobenny/datatop/cli/internal/transport"
	"github.com/zhaobenny/datatop/internal/credential"
	"github.com/zhaobenny/datatop/internal/model"
	"github.com/zhaobenny/datatop/internal/provider"
)

// State is a step of the protocol
type State int

const (
	StateStart State = iota
	StateCheckLoginState
	StateFetchIdentity
	StateEncrypt
	StateLogin
	StateFetchUsage
	StateReport
	StateLogout
	StateDone
)

var stateNames = map[State]string{
	StateStart:           "config",
	StateCheckLoginState: "login state",
	StateFetchIdentity:   "identity",
	StateEncrypt:         "encrypt",
	StateLogin:           "login",
	StateFetchUsage:      "usage",
	StateReport:          "report",
	StateLogout:          "logout",
	StateDone:            "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var iccidPattern = regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, provider.ICCIDLength))

// ReportFunc receives the validated usage snapshot. It runs before logout.
type ReportFunc func(model.PlanSnapshot) error

// Outcome describes a completed run
type Outcome struct {
	Snapshot model.PlanSnapshot
	// LogoutErr is set when logout failed. It never fails the run.
	LogoutErr error
}

// Session drives one login/usage/logout sequence over a transport client.
// The client's cookie jar is the session; use a fresh client per Session.
type Session struct {
	client *transport.Client
}

// New creates a Session on client
func New(client *transport.Client) *Session {
	return &Session{client: client}
}

// run holds what one state hands to the next
type run struct {
	password string
	report   ReportFunc

	key, salt string
	iccid     string
	login     provider.LoginRequest
	snapshot  model.PlanSnapshot
	reportErr error
	logoutErr error
}

// Run executes the protocol. Validation failures before the report abort the
// run at once. After a successful login, logout is always attempted.
func (s *Session) Run(ctx context.Context, password string, report ReportFunc) (Outcome, error) {
	if password == "" {
		return Outcome{}, model.ErrEmptyPassword
	}

	r := &run{password: password, report: report}
	state := StateStart
	for state != StateDone {
		log.Debug().Stringer("state", state).Msg("session: entering state")

		next, err := s.step(ctx, state, r)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", state, err)
		}
		state = next
	}

	outcome := Outcome{Snapshot: r.snapshot, LogoutErr: r.logoutErr}
	if r.reportErr != nil {
		return outcome, r.reportErr
	}
	return outcome, nil
}

func (s *Session) step(ctx context.Context, state State, r *run) (State, error) {
	switch state {
	case StateStart:
		return StateCheckLoginState, s.fetchConfig(ctx, r)
	case StateCheckLoginState:
		return StateFetchIdentity, s.checkLoginState(ctx)
	case StateFetchIdentity:
		return StateEncrypt, s.fetchIdentity(ctx, r)
	case StateEncrypt:
		return StateLogin, encrypt(r)
	case StateLogin:
		return StateFetchUsage, s.login(ctx, r)
	case StateFetchUsage:
		return StateReport, s.fetchUsage(ctx, r)
	case StateReport:
		if r.report != nil {
			r.reportErr = r.report(r.snapshot)
		}
		return StateLogout, nil
	case StateLogout:
		r.logoutErr = s.logout(ctx)
		if r.logoutErr != nil {
			log.Warn().Err(r.logoutErr).Msg("session: logout failed")
		}
		return StateDone, nil
	}
	return StateDone, fmt.Errorf("unknown state %d", int(state))
}

func (s *Session) fetchConfig(ctx context.Context, r *run) error {
	resp, err := s.client.GetJSON(ctx, provider.PathConfig)
	if err != nil {
		return err
	}

	key := resp.Body.Get("key")
	if key.Type != gjson.String || key.String() == "" {
		return malformed(StateStart, "key", key)
	}
	salt := resp.Body.Get("salt")
	if salt.Type != gjson.String || salt.String() == "" {
		return malformed(StateStart, "salt", salt)
	}

	r.key, r.salt = key.String(), salt.String()
	return nil
}

func (s *Session) checkLoginState(ctx context.Context) error {
	resp, err := s.client.GetJSON(ctx, provider.PathLoginState)
	if err != nil {
		return err
	}

	state := resp.Body.Get("state")
	if state.Type != gjson.String || state.String() != provider.LoginStateLoggedOut {
		return malformed(StateCheckLoginState, "state", state)
	}
	return nil
}

func (s *Session) fetchIdentity(ctx context.Context, r *run) error {
	resp, err := s.client.GetJSON(ctx, provider.PathIdentity)
	if err != nil {
		return err
	}

	iccid := resp.Body.Get("iccid")
	if iccid.Type != gjson.String || !iccidPattern.MatchString(iccid.String()) {
		return malformed(StateFetchIdentity, "iccid", iccid)
	}

	r.iccid = iccid.String()
	log.Debug().Str("iccid", r.iccid).Msg("session: identity fetched")
	return nil
}

func encrypt(r *run) error {
	c, err := credential.New([]byte(r.key), []byte(r.salt))
	if err != nil {
		return err
	}
	r.login = provider.LoginRequest{
		Login:    c.EncryptString(r.iccid),
		Password: c.EncryptString(r.password),
	}
	return nil
}

func (s *Session) login(ctx context.Context, r *run) error {
	body, err := sjson.SetBytes([]byte(`{}`), "login", r.login.Login)
	if err != nil {
		return err
	}
	body, err = sjson.SetBytes(body, "password", r.login.Password)
	if err != nil {
		return err
	}

	resp, err := s.client.PostJSON(ctx, provider.PathLogin, json.RawMessage(body))
	if err != nil {
		if isBadCredentials(err) {
			return model.ErrBadCredentials
		}
		return err
	}

	result := resp.Body.Get("result")
	if result.Type != gjson.String || result.String() != provider.ResultOK {
		return malformed(StateLogin, "result", result)
	}
	return nil
}

func isBadCredentials(err error) bool {
	var httpErr *transport.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == provider.BadCredentialsStatus &&
		httpErr.Body.Get("error").String() == provider.ErrorInvalidCredentials
}

func (s *Session) fetchUsage(ctx context.Context, r *run) error {
	resp, err := s.client.GetJSON(ctx, provider.PathUsage)
	if err != nil {
		return err
	}

	snap, err := ParseUsage(resp.Body)
	if err != nil {
		return err
	}
	snap.CapturedAt = resp.ReceivedAt
	if t, ok := resp.ServerTime(); ok {
		snap.ServerTime = &t
	}

	r.snapshot = snap
	log.Debug().
		Bool("active", snap.Active).
		Bool("server_time", snap.ServerTime != nil).
		Msg("session: usage fetched")
	return nil
}

func (s *Session) logout(ctx context.Context) error {
	resp, err := s.client.PostJSON(ctx, provider.PathLogout, json.RawMessage(`{}`))
	if err != nil {
		return err
	}

	result := resp.Body.Get("result")
	if result.Type != gjson.String || result.String() != provider.ResultOK {
		return malformed(StateLogout, "result", result)
	}
	return nil
}

func malformed(state State, field string, value gjson.Result) error {
	return &model.MalformedResponseError{
		Step:  state.String(),
		Field: field,
		Value: fieldValue(value),
	}
}

func fieldValue(r gjson.Result) any {
	switch {
	case !r.Exists():
		return "<missing>"
	case r.Type == gjson.String:
		return r.String()
	default:
		return model.RawJSON(r.Raw)
	}
}

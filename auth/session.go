package auth

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

// State is where the session sits in its four-state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateMFARequired
	StateAuthenticated
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateMFARequired:
		return "MFA_REQUIRED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateReady:
		return "READY"
	}
	return "UNKNOWN"
}

const (
	authBase  = "https://idmsa.apple.com/appleauth/auth"
	setupBase = "https://setup.icloud.com/setup/ws/1"

	// Widget key of the public icloud.com web client.
	widgetKey = "d39ba9916b7251055b22c7f910e2ea796ee65e98b2ddecea8f5dde8d9d1a815d"
)

// TrustedPhone is one entry of the trusted phone number list delivered with
// the 2FA challenge.
type TrustedPhone struct {
	ID                 int    `json:"id"`
	NumberWithDialCode string `json:"numberWithDialCode"`
	PushMode           string `json:"pushMode"`
}

// TrustedDevice is a device able to display a verification code.
type TrustedDevice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Config carries everything the session needs to reach READY.
type Config struct {
	Username       string
	Password       string
	TrustToken     string
	TrustTokenPath string
	MFAPort        int
	MFATimeout     time.Duration
}

// Session owns credentials, session and trust tokens, the cookie jar, and
// the derived request headers. It is mutated only between sync phases, never
// concurrently with in-flight photo-service requests.
type Session struct {
	cfg    Config
	obs    Observer
	client *http.Client

	state          State
	clientID       string
	scnt           string
	sessionID      string
	sessionToken   string
	trustToken     string
	accountCountry string

	trustedDevices []TrustedDevice
	trustedPhones  []TrustedPhone

	photosURL string
}

func NewSession(cfg Config, obs Observer) (*Session, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, apperr.New(apperr.KindAuth, "username and password are required")
	}
	if obs == nil {
		obs = NopObserver{}
	}
	if cfg.MFATimeout == 0 {
		cfg.MFATimeout = 10 * time.Minute
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "cannot create cookie jar", err)
	}

	trustToken := cfg.TrustToken
	if trustToken == "" {
		trustToken = loadTrustToken(cfg.TrustTokenPath)
	}

	return &Session{
		cfg:        cfg,
		obs:        obs,
		client:     &http.Client{Jar: jar, Timeout: 60 * time.Second},
		clientID:   "auth-" + uuid.New().String(),
		trustToken: trustToken,
	}, nil
}

// State reports the machine position, for logging and tests.
func (s *Session) State() State { return s.state }

// HTTPClient exposes the cookie- and header-carrying client used by the
// remote library client for record queries and downloads.
func (s *Session) HTTPClient() *http.Client { return s.client }

// PhotosURL is the per-zone photo endpoint resolved during discovery.
// Empty before READY.
func (s *Session) PhotosURL() string { return s.photosURL }

// TrustToken returns the current trust token, fetched or reused.
func (s *Session) TrustToken() string { return s.trustToken }

// Authenticate drives the session to READY. The MFA endpoint runs only while
// the machine sits in MFA_REQUIRED.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.state == StateReady {
		return nil
	}

	mfaNeeded, err := s.signIn(ctx)
	if err != nil {
		return err
	}

	if mfaNeeded {
		s.state = StateMFARequired
		s.obs.MFARequired(len(s.trustedDevices), s.trustedPhones)
		if err := s.awaitMFA(ctx); err != nil {
			return err
		}
		if err := s.requestTrust(ctx); err != nil {
			return err
		}
	}

	if err := s.accountLogin(ctx); err != nil {
		return err
	}
	s.state = StateAuthenticated
	s.obs.Authenticated()

	if err := s.resolvePhotosEndpoint(ctx); err != nil {
		return err
	}
	s.state = StateReady
	s.obs.Ready()
	logger.Info(ctx, "auth session ready")
	return nil
}

// Refresh rebuilds the session from stored credentials and the trust token
// for mid-run recovery after a session expiry.
func (s *Session) Refresh(ctx context.Context) error {
	logger.Info(ctx, "refreshing auth session")
	jar, err := cookiejar.New(nil)
	if err != nil {
		return apperr.Wrap(apperr.KindAuth, "cannot reset cookie jar", err)
	}
	s.client.Jar = jar
	s.state = StateUnauthenticated
	s.scnt = ""
	s.sessionID = ""
	s.sessionToken = ""
	s.photosURL = ""
	return s.Authenticate(ctx)
}

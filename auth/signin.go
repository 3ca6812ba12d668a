package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

func (s *Session) newRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAuth, "cannot encode request body", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "cannot build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Apple-Widget-Key", widgetKey)
	req.Header.Set("X-Apple-OAuth-Client-Id", widgetKey)
	req.Header.Set("X-Apple-OAuth-Client-Type", "firstPartyAuth")
	req.Header.Set("X-Apple-OAuth-State", s.clientID)
	req.Header.Set("X-Apple-OAuth-Response-Type", "code")
	if s.scnt != "" {
		req.Header.Set("scnt", s.scnt)
	}
	if s.sessionID != "" {
		req.Header.Set("X-Apple-ID-Session-Id", s.sessionID)
	}
	return req, nil
}

func (s *Session) do(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Recoverable(apperr.KindNetwork, "auth request failed", err).
			With("url", req.URL.Path)
	}
	if scnt := resp.Header.Get("scnt"); scnt != "" {
		s.scnt = scnt
	}
	if id := resp.Header.Get("X-Apple-ID-Session-Id"); id != "" {
		s.sessionID = id
	}
	if token := resp.Header.Get("X-Apple-Session-Token"); token != "" {
		s.sessionToken = token
	}
	return resp, nil
}

// signIn posts credentials (plus any stored trust token) to the sign-in
// endpoint. Returns whether a 2FA challenge must be answered first.
func (s *Session) signIn(ctx context.Context) (mfaNeeded bool, err error) {
	payload := map[string]interface{}{
		"accountName": s.cfg.Username,
		"password":    s.cfg.Password,
		"rememberMe":  true,
	}
	if s.trustToken != "" {
		payload["trustTokens"] = []string{s.trustToken}
	}

	req, err := s.newRequest(ctx, http.MethodPost, authBase+"/signin", payload)
	if err != nil {
		return false, err
	}
	resp, err := s.do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Trust-token path, no challenge.
		return false, nil
	case resp.StatusCode == http.StatusConflict:
		// 2FA required; fetch the challenge details.
		if err := s.fetchChallenge(ctx); err != nil {
			return false, err
		}
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, apperr.New(apperr.KindAuth, "invalid credentials").
			With("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return false, apperr.Recoverable(apperr.KindNetwork, "sign-in endpoint unavailable", nil).
			With("status", resp.StatusCode)
	default:
		return false, apperr.New(apperr.KindAuth, "unexpected sign-in response").
			With("status", resp.StatusCode)
	}
}

// fetchChallenge loads the trusted device and phone lists for the pending
// 2FA challenge.
func (s *Session) fetchChallenge(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, authBase, nil)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindAuth, "cannot load 2FA challenge").
			With("status", resp.StatusCode)
	}

	var challenge struct {
		TrustedDevices      []TrustedDevice `json:"trustedDevices"`
		TrustedPhoneNumbers []TrustedPhone  `json:"trustedPhoneNumbers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return apperr.Wrap(apperr.KindAuth, "malformed 2FA challenge", err)
	}
	s.trustedDevices = challenge.TrustedDevices
	s.trustedPhones = challenge.TrustedPhoneNumbers
	return nil
}

// requestTrust exchanges the fresh MFA validation for a trust token so
// subsequent sign-ins skip the challenge.
func (s *Session) requestTrust(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, authBase+"/2sv/trust", nil)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "trust token request declined", logger.Int("status", resp.StatusCode))
		return nil
	}
	if token := resp.Header.Get("X-Apple-TwoSV-Trust-Token"); token != "" {
		s.trustToken = token
		if err := saveTrustToken(s.cfg.TrustTokenPath, token); err != nil {
			logger.Warn(ctx, "cannot persist trust token", logger.ErrorField(err))
		}
	}
	return nil
}

// accountLogin exchanges the session token for the photo service access
// tokens and cookies.
func (s *Session) accountLogin(ctx context.Context) error {
	if s.sessionToken == "" {
		return apperr.New(apperr.KindAuth, "no session token after sign-in")
	}
	payload := map[string]interface{}{
		"dsWebAuthToken": s.sessionToken,
		"extended_login": true,
	}
	if s.trustToken != "" {
		payload["trustToken"] = s.trustToken
	}

	req, err := s.newRequest(ctx, http.MethodPost, setupBase+"/accountLogin", payload)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Recoverable(apperr.KindAuth, "session token rejected", nil).
			With("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "setup endpoint unavailable", nil).
			With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindAuth, "unexpected account login response").
			With("status", resp.StatusCode)
	}

	var setup struct {
		DsInfo struct {
			Country string `json:"country"`
		} `json:"dsInfo"`
		WebServices struct {
			CKDatabaseWS struct {
				URL string `json:"url"`
			} `json:"ckdatabasews"`
		} `json:"webservices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&setup); err != nil {
		return apperr.Wrap(apperr.KindAuth, "malformed account login response", err)
	}
	if setup.WebServices.CKDatabaseWS.URL == "" {
		return apperr.New(apperr.KindAuth, "account login response carries no database endpoint")
	}
	s.accountCountry = setup.DsInfo.Country
	s.photosURL = fmt.Sprintf("%s/database/1/com.apple.photos.cloud/production/private", setup.WebServices.CKDatabaseWS.URL)
	return nil
}

// resolvePhotosEndpoint verifies the per-zone endpoint responds before the
// session reports READY.
func (s *Session) resolvePhotosEndpoint(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodPost, s.photosURL+"/zones/list", nil)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Recoverable(apperr.KindAuth, "photo service rejected session", nil).
			With("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "photo service unavailable", nil).
			With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindAuth, "unexpected zone discovery response").
			With("status", resp.StatusCode)
	}
}

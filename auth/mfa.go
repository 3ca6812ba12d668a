package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/StorX2-0/iCloud-Backup/mfaserver"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

// awaitMFA runs the MFA endpoint for the duration of the MFA_REQUIRED window
// and feeds received events into the state machine, one at a time.
func (s *Session) awaitMFA(ctx context.Context) error {
	srv := mfaserver.New(s.cfg.MFAPort)
	srvErr := srv.Start(ctx)
	defer srv.Stop(ctx)

	deadline := time.NewTimer(s.cfg.MFATimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return apperr.Interrupted(ctx.Err())
		case <-deadline.C:
			return apperr.New(apperr.KindAuth, "timed out waiting for MFA code").
				With("timeout", s.cfg.MFATimeout.String())
		case err, ok := <-srvErr:
			if ok && err != nil {
				return apperr.Wrap(apperr.KindAuth, "MFA endpoint failed to start", err)
			}
		case ev := <-srv.Events():
			switch ev.Kind {
			case mfaserver.EventCode:
				if err := s.submitCode(ctx, ev.Method, ev.Code); err != nil {
					if apperr.SeverityOf(err) == apperr.SeverityWarn {
						s.obs.Warning(err.Error())
						logger.Warn(ctx, "MFA code rejected", logger.ErrorField(err))
						continue
					}
					return err
				}
				return nil
			case mfaserver.EventResend:
				if err := s.resendMFA(ctx, ev.Method, ev.PhoneID); err != nil {
					if apperr.SeverityOf(err) == apperr.SeverityWarn {
						s.obs.Warning(err.Error())
						logger.Warn(ctx, "MFA resend failed", logger.ErrorField(err))
						continue
					}
					return err
				}
				s.obs.MFASent(string(ev.Method))
			}
		}
	}
}

// submitCode posts the received code to the endpoint matching the delivery
// method. Devices acknowledge with 204, phones with 200.
func (s *Session) submitCode(ctx context.Context, method mfaserver.Method, code string) error {
	var url string
	var wantStatus int
	payload := map[string]interface{}{
		"securityCode": map[string]string{"code": code},
	}

	if method == mfaserver.MethodDevice {
		url = authBase + "/verify/trusteddevice/securitycode"
		wantStatus = http.StatusNoContent
	} else {
		url = authBase + "/verify/phone/securitycode"
		wantStatus = http.StatusOK
		payload["phoneNumber"] = map[string]int{"id": 1}
		payload["mode"] = string(method)
	}

	req, err := s.newRequest(ctx, http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == wantStatus:
		logger.Info(ctx, "MFA code accepted", logger.String("method", string(method)))
		return nil
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusForbidden:
		return apperr.Warning(apperr.KindAuth, "MFA code rejected by the service").
			With("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "MFA verification endpoint unavailable", nil).
			With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindAuth, "unexpected MFA verification response").
			With("status", resp.StatusCode)
	}
}

// resendMFA asks the service to deliver a fresh code. Phone number
// membership is enforced before dispatch.
func (s *Session) resendMFA(ctx context.Context, method mfaserver.Method, phoneID int) error {
	var url string
	var payload map[string]interface{}

	if method == mfaserver.MethodDevice {
		url = authBase + "/verify/trusteddevice"
	} else {
		known := utils.NewComparableList[int]()
		for _, p := range s.trustedPhones {
			known.Add(p.ID)
		}
		if !known.Contains(phoneID) {
			return apperr.Warning(apperr.KindAuth, phoneWarning(s.trustedPhones))
		}
		url = authBase + "/verify/phone"
		payload = map[string]interface{}{
			"phoneNumber": map[string]int{"id": phoneID},
			"mode":        string(method),
		}
	}

	req, err := s.newRequest(ctx, http.MethodPut, url, payload)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusAccepted:
		logger.Info(ctx, "MFA resend dispatched", logger.String("method", string(method)))
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed:
		// The service disagrees about the trusted number list.
		return apperr.Warning(apperr.KindAuth, phoneWarning(s.trustedPhones))
	case resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindAuth, "MFA resend timed out").
			With("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "MFA resend endpoint unavailable", nil).
			With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindAuth, "unexpected MFA resend response").
			With("status", resp.StatusCode)
	}
}

// phoneWarning lists the phone number IDs the service would accept.
func phoneWarning(phones []TrustedPhone) string {
	var b strings.Builder
	b.WriteString("Selected Phone Number ID does not exist.\nAvailable numbers:")
	for _, p := range phones {
		fmt.Fprintf(&b, "\n- %d: %s", p.ID, p.NumberWithDialCode)
	}
	return b.String()
}

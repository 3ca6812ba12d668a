package mfaserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	u.RawQuery = u.Query().Encode()
	req := httptest.NewRequest(method, u.String(), nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body.Message
}

func Test_Server_CodeHappyPath(t *testing.T) {
	s := New(0)

	rec, msg := doRequest(t, s, http.MethodPost, "/mfa?code=123456")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Read MFA code: 123456", msg)

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventCode, ev.Kind)
		assert.Equal(t, MethodDevice, ev.Method)
		assert.Equal(t, "123456", ev.Code)
	default:
		t.Fatal("expected exactly one event")
	}
	select {
	case <-s.Events():
		t.Fatal("expected no further events")
	default:
	}
}

func Test_Server_CodeWrongFormat(t *testing.T) {
	s := New(0)

	for _, code := range []string{"123 456", "12345", "1234567", "abcdef", ""} {
		rec, msg := doRequest(t, s, http.MethodPost, "/mfa?code="+code)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "code %q", code)
		assert.Equal(t, "Unexpected MFA code format! Expecting 6 digits", msg)
	}
	select {
	case <-s.Events():
		t.Fatal("malformed codes must not emit events")
	default:
	}
}

func Test_Server_Resend(t *testing.T) {
	s := New(0)

	rec, msg := doRequest(t, s, http.MethodPost, "/resend_mfa?method=sms&phoneNumberId=3")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Requesting MFA resend with method sms", msg)

	ev := <-s.Events()
	assert.Equal(t, EventResend, ev.Kind)
	assert.Equal(t, MethodSMS, ev.Method)
	assert.Equal(t, 3, ev.PhoneID)
}

func Test_Server_ResendUnparseablePhoneIDDefaultsToOne(t *testing.T) {
	s := New(0)

	rec, _ := doRequest(t, s, http.MethodPost, "/resend_mfa?method=voice&phoneNumberId=abc")

	assert.Equal(t, http.StatusOK, rec.Code)
	ev := <-s.Events()
	assert.Equal(t, 1, ev.PhoneID)
}

func Test_Server_ResendUnknownMethod(t *testing.T) {
	s := New(0)

	rec, msg := doRequest(t, s, http.MethodPost, "/resend_mfa?method=carrier-pigeon")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Resend method not supported: carrier-pigeon", msg)
}

func Test_Server_RootBanner(t *testing.T) {
	s := New(0)

	rec, msg := doRequest(t, s, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, msg, "MFA endpoint")
}

func Test_Server_UnknownRoutes(t *testing.T) {
	s := New(0)

	rec, msg := doRequest(t, s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Method not supported", msg)

	rec, msg = doRequest(t, s, http.MethodPost, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, msg, "/mfa")
	assert.Contains(t, msg, "/resend_mfa")
}

package mfaserver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	response "github.com/StorX2-0/iCloud-Backup/pkg/echo"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

// Method selects the channel an MFA code travels over.
type Method string

const (
	MethodDevice Method = "device"
	MethodSMS    Method = "sms"
	MethodVoice  Method = "voice"
)

// EventKind distinguishes the two things a user can ask for.
type EventKind int

const (
	// EventCode carries a submitted six-digit code.
	EventCode EventKind = iota
	// EventResend asks the service to re-deliver a code.
	EventResend
)

// Event is what the endpoint hands to the auth state machine.
type Event struct {
	Kind    EventKind
	Method  Method
	Code    string
	PhoneID int
}

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Server is the short-lived HTTP listener that collects the MFA code while
// the auth session sits in its MFA window.
type Server struct {
	echo   *echo.Echo
	port   int
	events chan Event
}

func New(port int) *Server {
	s := &Server{
		port:   port,
		events: make(chan Event, 4),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())

	e.GET("/", s.handleRoot)
	e.POST("/mfa", s.handleCode)
	e.POST("/resend_mfa", s.handleResend)
	e.RouteNotFound("/*", s.handleUnknown)

	s.echo = e
	return s
}

// Events delivers submitted codes and resend requests. Delivery into the
// auth state machine is serialized by the single consumer.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Start brings the listener up in the background. Startup failures surface
// on the returned channel.
func (s *Server) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "MFA endpoint listening", logger.Int("port", s.port))
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop tears the listener down when the auth session leaves its MFA window.
func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "MFA endpoint shutdown", logger.ErrorField(err))
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	return response.OK(c, "iCloud Photos Backup MFA endpoint, POST /mfa?code=<6 digits> to submit a code")
}

func (s *Server) handleCode(c echo.Context) error {
	code := c.QueryParam("code")
	if !codePattern.MatchString(code) {
		logger.Warn(c.Request().Context(), "received malformed MFA code", logger.String("code", code))
		return response.BadRequest(c, "Unexpected MFA code format! Expecting 6 digits")
	}
	s.events <- Event{Kind: EventCode, Method: MethodDevice, Code: code}
	return response.OK(c, "Read MFA code: "+code)
}

func (s *Server) handleResend(c echo.Context) error {
	method := Method(c.QueryParam("method"))
	switch method {
	case MethodDevice, MethodSMS, MethodVoice:
	default:
		logger.Warn(c.Request().Context(), "unknown MFA resend method", logger.String("method", string(method)))
		return response.BadRequest(c, fmt.Sprintf("Resend method not supported: %s", method))
	}

	// An unparseable phone number id silently defaults to id 1.
	phoneID := 1
	if raw := c.QueryParam("phoneNumberId"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			phoneID = parsed
		}
	}

	s.events <- Event{Kind: EventResend, Method: method, PhoneID: phoneID}
	return response.OK(c, fmt.Sprintf("Requesting MFA resend with method %s", method))
}

func (s *Server) handleUnknown(c echo.Context) error {
	ctx := c.Request().Context()
	if c.Request().Method == http.MethodPost {
		logger.Warn(ctx, "POST to unknown MFA route", logger.String("path", c.Request().URL.Path))
		return response.NotFound(c, "Route not found, available endpoints: /mfa, /resend_mfa")
	}
	logger.Warn(ctx, "unsupported MFA request", logger.String("method", c.Request().Method),
		logger.String("path", c.Request().URL.Path))
	return response.BadRequest(c, "Method not supported")
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
	"gopkg.in/go-playground/validator.v9"
)

const (
	defaultEmailPurpose = "register"
	maxPayloadBytes     = 1 << 20
)

var invalidCredentialsPattern = regexp.MustCompile(`(?i)invalid credentials`)

type AuthMethodsPort interface {
	Fetch(ctx context.Context, token string) *common.AuthMethods
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6,max=128"`
}

type registerPayload struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"min=6,max=128"`
	InviteCode string `json:"inviteCode,omitempty" validate:"omitempty,max=128"`
}

type emailRequestPayload struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose"`
}

type credentialsHandlers struct {
	backend     BackendPort
	codec       *session.Codec
	invalidator cache.Invalidator
	methods     AuthMethodsPort
	validate    *validator.Validate
}

func NewCredentialsHandlers(
	backend BackendPort,
	codec *session.Codec,
	invalidator cache.Invalidator,
	methods AuthMethodsPort,
) *credentialsHandlers {
	return &credentialsHandlers{
		backend:     backend,
		codec:       codec,
		invalidator: invalidator,
		methods:     methods,
		validate:    NewValidator(),
	}
}

// NewValidator reports issues under the JSON field names.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

func decodeBody(request *http.Request, payload interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, request.Body, maxPayloadBytes))
	if err := decoder.Decode(payload); err != nil {
		return &common.ValidationError{Issues: []common.Issue{{Message: "Body must be a JSON object"}}}
	}
	return nil
}

func (handlers *credentialsHandlers) check(payload interface{}) error {
	err := handlers.validate.Struct(payload)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return &common.ValidationError{Issues: []common.Issue{{Message: err.Error()}}}
	}
	issues := make([]common.Issue, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		issues = append(issues, common.Issue{
			Field:   fieldError.Field(),
			Message: issueMessage(fieldError),
		})
	}
	return &common.ValidationError{Issues: issues}
}

func issueMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "min":
		return fmt.Sprintf("Must contain at least %s character(s)", fieldError.Param())
	case "max":
		return fmt.Sprintf("Must contain at most %s character(s)", fieldError.Param())
	default:
		return fmt.Sprintf("Failed on the '%s' rule", fieldError.Tag())
	}
}

func (handlers *credentialsHandlers) Login(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	var payload loginPayload
	if err := decodeBody(request, &payload); err != nil {
		common.WriteError(writer, err)
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)
	if err := handlers.check(&payload); err != nil {
		common.WriteError(writer, err)
		return
	}
	handlers.signIn(log, writer, request, "/auth/login", payload, signInFailure{
		code:           common.CodeInvalidCredentials,
		defaultMessage: "Login failed",
		onlyOnMatch:    true,
	}, cache.RouteLogin)
}

func (handlers *credentialsHandlers) Register(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	var payload registerPayload
	if err := decodeBody(request, &payload); err != nil {
		common.WriteError(writer, err)
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)
	payload.InviteCode = strings.TrimSpace(payload.InviteCode)
	if err := handlers.check(&payload); err != nil {
		common.WriteError(writer, err)
		return
	}
	handlers.signIn(log, writer, request, "/auth/register", payload, signInFailure{
		code:           common.CodeRegisterFailed,
		defaultMessage: "Register failed",
	}, cache.RouteRegister)
}

type signInFailure struct {
	code           string
	defaultMessage string
	// onlyOnMatch sets code only for a 401 whose detail reads as bad
	// credentials.
	onlyOnMatch bool
}

func (failure signInFailure) render(status int, detail string) *common.UpstreamError {
	err := &common.UpstreamError{Status: status, Message: detail}
	if err.Message == "" {
		err.Message = failure.defaultMessage
	}
	if !failure.onlyOnMatch {
		err.Code = failure.code
	} else if status == http.StatusUnauthorized && invalidCredentialsPattern.MatchString(detail) {
		err.Code = failure.code
	}
	return err
}

func (handlers *credentialsHandlers) signIn(
	log *logrus.Entry,
	writer http.ResponseWriter,
	request *http.Request,
	path string,
	payload interface{},
	failure signInFailure,
	route cache.Route,
) {
	const stage = "Signing in error."

	response, err := handlers.backend.PostJSON(request.Context(), path, "", payload)
	if err != nil {
		log.Warn(newErr(stage, err))
		common.WriteError(writer, err)
		return
	}
	if !response.OK() {
		log.Debugf("%v Reason: backend answered %d", stage, response.Status)
		common.WriteError(writer, failure.render(response.Status, response.Detail()))
		return
	}
	grant, ok := ParseAuthGrant(response)
	if !ok {
		log.Warnf("%v Reason: unexpected response shape", stage)
		common.WriteError(writer, &common.UpstreamUnavailableError{
			Code:  common.CodeInvalidUpstreamResponse,
			Cause: newErr(stage, "unexpected response shape"),
		})
		return
	}

	handlers.codec.Write(writer, grant.Token, session.IsSecureRequest(request))
	cache.Bust(log, handlers.invalidator, route)
	common.WriteJSON(writer, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"user": grant.User,
	})
}

func (handlers *credentialsHandlers) Logout(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	if token := handlers.codec.Token(request); token != "" {
		if _, err := handlers.backend.PostJSON(request.Context(), "/auth/logout", token, struct{}{}); err != nil {
			log.Debug(newErr("Notifying backend about logout error.", err))
		}
	}
	handlers.codec.Clear(writer, session.IsSecureRequest(request))
	cache.Bust(log, handlers.invalidator, cache.RouteLogout)
	common.WriteJSON(writer, http.StatusOK, map[string]interface{}{"ok": true})
}

func (handlers *credentialsHandlers) Me(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	token := handlers.codec.Token(request)
	if !session.IsLoggedIn(token) {
		common.WriteError(writer, &common.AuthenticationError{Reason: "no session"})
		return
	}

	response, err := handlers.backend.Get(request.Context(), "/auth/me", token)
	if err != nil {
		log.Warn(newErr("Reading current user error.", err))
		common.WriteError(writer, err)
		return
	}
	if !response.OK() {
		message := response.Detail()
		if message == "" {
			message = "Unauthorized"
		}
		common.WriteJSON(writer, response.Status, common.ErrorBody{Message: message})
		return
	}
	value, ok := response.JSON()
	if !ok {
		common.WriteError(writer, &common.UpstreamUnavailableError{
			Code:  common.CodeInvalidUpstreamResponse,
			Cause: newErr("Reading current user error.", "body is not json"),
		})
		return
	}
	common.WriteJSON(writer, http.StatusOK, value)
}

func (handlers *credentialsHandlers) EmailRequest(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	var payload emailRequestPayload
	if err := decodeBody(request, &payload); err != nil {
		common.WriteError(writer, err)
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)
	payload.Purpose = strings.TrimSpace(payload.Purpose)
	if payload.Purpose == "" {
		payload.Purpose = defaultEmailPurpose
	}
	if err := handlers.check(&payload); err != nil {
		common.WriteError(writer, err)
		return
	}

	response, err := handlers.backend.PostJSON(request.Context(), "/auth/email/request", "", payload)
	if err != nil {
		log.Warn(newErr("Requesting email code error.", err))
		common.WriteError(writer, err)
		return
	}
	if !response.OK() {
		message := response.Detail()
		if message == "" {
			message = "Request failed"
		}
		common.WriteJSON(writer, response.Status, common.ErrorBody{Message: message})
		return
	}

	body := map[string]interface{}{"ok": true}
	if value, ok := response.JSON(); ok {
		if fields, ok := value.(map[string]interface{}); ok {
			for name, field := range fields {
				body[name] = field
			}
		}
	}
	common.WriteJSON(writer, http.StatusOK, body)
}

func (handlers *credentialsHandlers) Methods(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	token := handlers.codec.Token(request)
	if !session.IsLoggedIn(token) {
		common.WriteError(writer, &common.AuthenticationError{Reason: "no session"})
		return
	}
	methods := handlers.methods.Fetch(request.Context(), token)
	if methods == nil {
		common.WriteError(writer, &common.UpstreamUnavailableError{Cause: newErr("Reading auth methods error.", "no result")})
		return
	}
	common.WriteJSON(writer, http.StatusOK, methods)
}

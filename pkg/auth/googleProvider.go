package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	DefaultGoogleAuthUrl = "https://accounts.google.com/o/oauth2/v2/auth"
	CallbackPath         = "/api/auth/google/callback"

	oauthExchangePath = "/auth/oauth/google"
	redirectStatus    = http.StatusTemporaryRedirect
)

var DefaultGoogleScopes = []string{"openid", "email", "profile"}

type BackendPort interface {
	Get(ctx context.Context, path string, token string) (*backend.Response, error)
	PostJSON(ctx context.Context, path string, token string, payload interface{}) (*backend.Response, error)
}

type GoogleSettings struct {
	ClientId      string
	RedirectUri   string
	AuthUrl       string
	Scopes        []string
	PublicBaseUrl string
}

type googleOAuth2Provider struct {
	settings     GoogleSettings
	backend      BackendPort
	transactions TransactionStore
	codec        *session.Codec
	invalidator  cache.Invalidator
}

func NewGoogleOAuth2Provider(
	settings GoogleSettings,
	backend BackendPort,
	transactions TransactionStore,
	codec *session.Codec,
	invalidator cache.Invalidator,
) *googleOAuth2Provider {
	if settings.AuthUrl == "" {
		settings.AuthUrl = DefaultGoogleAuthUrl
	}
	if len(settings.Scopes) == 0 {
		settings.Scopes = DefaultGoogleScopes
	}
	return &googleOAuth2Provider{
		settings:     settings,
		backend:      backend,
		transactions: transactions,
		codec:        codec,
		invalidator:  invalidator,
	}
}

func (provider *googleOAuth2Provider) redirectUri(request *http.Request) string {
	if provider.settings.RedirectUri != "" {
		return provider.settings.RedirectUri
	}
	return session.PublicOrigin(request, provider.settings.PublicBaseUrl) + CallbackPath
}

func (provider *googleOAuth2Provider) config(request *http.Request) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    provider.settings.ClientId,
		RedirectURL: provider.redirectUri(request),
		Scopes:      provider.settings.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   provider.settings.AuthUrl,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Start begins a sign-in: it remembers state and verifier for the browser
// and sends it to the authorization endpoint.
func (provider *googleOAuth2Provider) Start(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	const stage = "Starting google authorisation error."

	if provider.settings.ClientId == "" {
		log.Errorf("%v Reason: client id is not configured", stage)
		common.WriteJSON(writer, http.StatusInternalServerError, common.ErrorBody{Message: "Google OAuth not configured"})
		return
	}

	state, err := GenerateState()
	if err != nil {
		log.Error(newErr(stage, err))
		common.WriteError(writer, err)
		return
	}
	verifier, err := GenerateVerifier()
	if err != nil {
		log.Error(newErr(stage, err))
		common.WriteError(writer, err)
		return
	}

	query := request.URL.Query()
	transaction := &Transaction{
		State:    state,
		Verifier: verifier,
		Next:     SanitizeNextPath(query.Get("next")),
		From:     SanitizeFromPath(query.Get("from")),
	}
	if err := provider.transactions.Save(writer, request, transaction); err != nil {
		log.Error(newErr(stage, err))
		common.WriteError(writer, err)
		return
	}

	authUrl := provider.config(request).AuthCodeURL(
		state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	log.Debugf("Redirecting to google authorisation. Next: %s", transaction.Next)
	http.Redirect(writer, request, authUrl, redirectStatus)
}

// Callback completes a sign-in. Every failure ends in a redirect to the login
// page; nothing about the failure reaches the browser.
func (provider *googleOAuth2Provider) Callback(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	const stage = "Performing google authorisation error."

	transaction := provider.transactions.Load(request)
	provider.transactions.Clear(writer, request)

	origin := session.PublicOrigin(request, provider.settings.PublicBaseUrl)
	fail := func(reason interface{}) {
		log.Warn(newErr(stage, reason))
		http.Redirect(writer, request, origin+LoginPath, redirectStatus)
	}

	query := request.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	switch {
	case query.Get("error") != "":
		fail("provider returned " + query.Get("error"))
		return
	case code == "":
		fail("'code' query param not found or empty.")
		return
	case state == "":
		fail("'state' query param not found or empty.")
		return
	case transaction == nil || transaction.State == "":
		fail("no pending transaction for this browser.")
		return
	case subtle.ConstantTimeCompare([]byte(state), []byte(transaction.State)) != 1:
		fail("state mismatch.")
		return
	case transaction.Verifier == "":
		fail("code verifier not found.")
		return
	}

	grant, err := provider.exchange(request.Context(), code, transaction.Verifier, provider.redirectUri(request))
	if err != nil {
		fail(err)
		return
	}

	provider.codec.Write(writer, grant.Token, session.IsSecureRequest(request))
	cache.Bust(log, provider.invalidator, cache.RouteOAuthLogin)

	next := SanitizeNextPath(transaction.Next)
	log.WithField("userId", grant.User.Id).Debugf("Google authorisation successful. Next: %s", next)
	http.Redirect(writer, request, origin+next, redirectStatus)
}

type exchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectUri  string `json:"redirectUri"`
}

func (provider *googleOAuth2Provider) exchange(ctx context.Context, code string, verifier string, redirectUri string) (*AuthGrant, error) {
	const stage = "Exchanging authorisation code error."

	response, err := provider.backend.PostJSON(ctx, oauthExchangePath, "", exchangeRequest{
		Code:         code,
		CodeVerifier: verifier,
		RedirectUri:  redirectUri,
	})
	if err != nil {
		return nil, newErr(stage, err)
	}
	if !response.OK() {
		return nil, newErr(stage, strings.TrimSpace("status "+http.StatusText(response.Status)+" "+response.Detail()))
	}
	grant, ok := ParseAuthGrant(response)
	if !ok {
		return nil, newErr(stage, "unexpected response shape")
	}
	return grant, nil
}

// AuthGrant is a successful sign-in answer of the backend.
type AuthGrant struct {
	Token string          `json:"token"`
	User  common.AuthUser `json:"user"`
}

const minGrantTokenLength = 11

func ParseAuthGrant(response *backend.Response) (*AuthGrant, bool) {
	value, ok := response.JSON()
	if !ok {
		return nil, false
	}
	fields, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	token, ok := fields["token"].(string)
	if !ok || len(token) < minGrantTokenLength {
		return nil, false
	}
	user, ok := fields["user"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	id, idOk := user["id"].(string)
	email, emailOk := user["email"].(string)
	if !idOk || !emailOk {
		return nil, false
	}
	return &AuthGrant{Token: token, User: common.AuthUser{Id: id, Email: email}}, true
}

func newErr(stage string, reason interface{}) error {
	return common.NewErr(stage, reason)
}

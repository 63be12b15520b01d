package filters

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
	"gopkg.in/go-playground/validator.v9"
)

type Action int

const (
	Allow Action = iota
	Redirect
	Reject
)

type Decision struct {
	Action   Action
	Location string
}

var (
	publicExact    = []string{"/login", "/register"}
	publicPrefixes = []string{"/api/auth", "/_next", "/static", "/assets", "/favicon", "/robots", "/sitemap"}

	protectedExact    = []string{"/"}
	protectedPrefixes = []string{
		"/keys", "/settings", "/models", "/logs", "/profile", "/admin", "/billing",
		"/api/keys", "/api/usage", "/api/admin",
	}
)

func matches(path string, exact []string, prefixes []string) bool {
	for _, candidate := range exact {
		if path == candidate {
			return true
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAuthPage(path string) bool {
	return path == "/login" || path == "/register"
}

func IsPublicPath(path string) bool {
	return matches(path, publicExact, publicPrefixes)
}

func IsProtectedPath(path string) bool {
	return matches(path, protectedExact, protectedPrefixes)
}

// Decide is the whole gate policy. Paths outside both lists are allowed.
func Decide(path string, rawQuery string, loggedIn bool) Decision {
	if isAuthPage(path) && loggedIn {
		return Decision{Action: Redirect, Location: "/"}
	}
	if IsPublicPath(path) {
		return Decision{Action: Allow}
	}
	if !IsProtectedPath(path) || loggedIn {
		return Decision{Action: Allow}
	}
	if strings.HasPrefix(path, "/api/") {
		return Decision{Action: Reject}
	}
	return Decision{Action: Redirect, Location: loginLocation(path, rawQuery)}
}

func loginLocation(path string, rawQuery string) string {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	if query.Get("next") == "" {
		next := path
		if rawQuery != "" {
			next += "?" + rawQuery
		}
		query.Set("next", next)
	}
	return "/login?" + query.Encode()
}

type CurrentUserPort interface {
	Fetch(ctx context.Context, token string) *common.CurrentUser
}

type GateFilter struct {
	next          *common.RequestHandler
	Name          string         `validate:"required"`
	Codec         *session.Codec `validate:"required"`
	VerifySession bool
	currentUser   CurrentUserPort
}

var validate = validator.New()

// NewGateFilter builds the gate. With verifySession the backend must also
// accept the token before the request counts as logged in.
func NewGateFilter(name string, codec *session.Codec, verifySession bool, currentUser CurrentUserPort) *GateFilter {
	filter := &GateFilter{
		Name:          name,
		Codec:         codec,
		VerifySession: verifySession && currentUser != nil,
		currentUser:   currentUser,
	}
	if err := validate.Struct(filter); err != nil {
		panic(err.Error())
	}
	return filter
}

func (filter *GateFilter) SetNext(nextHandler common.RequestHandler) {
	filter.next = &nextHandler
}

func (filter *GateFilter) loggedIn(request *http.Request, token string) bool {
	if !session.IsLoggedIn(token) {
		return false
	}
	if !filter.VerifySession {
		return true
	}
	return filter.currentUser.Fetch(request.Context(), token) != nil
}

func (filter *GateFilter) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	log = log.WithField("filterName", filter.Name)

	path := request.URL.Path
	token := filter.Codec.Token(request)
	loggedIn := filter.loggedIn(request, token)
	decision := Decide(path, request.URL.RawQuery, loggedIn)

	staleCookie := token != "" && !loggedIn && (decision.Action != Allow || isAuthPage(path))
	if staleCookie {
		filter.Codec.Clear(writer, session.IsSecureRequest(request))
	}

	switch decision.Action {
	case Reject:
		log.Debugf("Gate rejected anonymous api request")
		common.WriteError(writer, &common.AuthenticationError{Reason: "no session"})
		return
	case Redirect:
		log.Debugf("Gate redirecting to %s", decision.Location)
		http.Redirect(writer, request, decision.Location, http.StatusTemporaryRedirect)
		return
	}

	if filter.next != nil {
		(*filter.next).Handle(log, writer, request)
	} else {
		log.Debugf("Gate filter: %v doesn't have next handler", filter.Name)
	}
}

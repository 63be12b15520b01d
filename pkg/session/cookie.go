package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCookieName = "uai_session"
	MinTokenLength    = 16
	CookieTTL         = 7 * 24 * time.Hour
)

// IsLoggedIn is a cheap liveness check on the cookie value. The backend is
// the authority on whether the token is actually valid.
func IsLoggedIn(token string) bool {
	return len(token) >= MinTokenLength
}

type Codec struct {
	CookieName string
}

func NewCodec(cookieName string) *Codec {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Codec{CookieName: cookieName}
}

func (codec *Codec) Token(request *http.Request) string {
	cookie, err := request.Cookie(codec.CookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func (codec *Codec) LoggedIn(request *http.Request) bool {
	return IsLoggedIn(codec.Token(request))
}

func (codec *Codec) Write(writer http.ResponseWriter, token string, secure bool) {
	http.SetCookie(writer, &http.Cookie{
		Name:     codec.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CookieTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (codec *Codec) Clear(writer http.ResponseWriter, secure bool) {
	http.SetCookie(writer, &http.Cookie{
		Name:     codec.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func firstHeader(request *http.Request, name string) string {
	raw := request.Header.Get(name)
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(raw, ",")[0])
}

// IsSecureRequest reports whether the request reached us over TLS, directly
// or through a proxy announcing it in X-Forwarded-Proto.
func IsSecureRequest(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	return strings.EqualFold(firstHeader(request, "X-Forwarded-Proto"), "https")
}

// PublicOrigin is the scheme://host the user agent sees.
func PublicOrigin(request *http.Request, configured string) string {
	if configured = strings.TrimRight(strings.TrimSpace(configured), "/"); configured != "" {
		return configured
	}

	proto := firstHeader(request, "X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if request.TLS != nil {
			proto = "https"
		}
	}
	host := firstHeader(request, "X-Forwarded-Host")
	if host == "" {
		host = request.Host
	}
	return proto + "://" + host
}

package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	LocaleCookieName = "uai_locale"
	LocaleAuto       = "auto"
	DefaultLocale    = "en"
	localeCookieTTL  = 365 * 24 * time.Hour
)

var supportedLocales = []string{"en", "zh-CN"}

// NormalizeLocale maps loose tags (zh, zh_cn, EN-us) onto a supported locale.
func NormalizeLocale(raw string) (string, bool) {
	value := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-"))
	if value == "" {
		return "", false
	}
	for _, locale := range supportedLocales {
		if value == strings.ToLower(locale) {
			return locale, true
		}
	}
	switch {
	case strings.HasPrefix(value, "zh"):
		return "zh-CN", true
	case strings.HasPrefix(value, "en"):
		return "en", true
	}
	return "", false
}

// ReadLocaleMode returns the stored preference, "auto" when there is none.
func ReadLocaleMode(request *http.Request) string {
	cookie, err := request.Cookie(LocaleCookieName)
	if err != nil {
		return LocaleAuto
	}
	if locale, ok := NormalizeLocale(cookie.Value); ok {
		return locale
	}
	return LocaleAuto
}

// WriteLocaleMode stores a preference readable by client scripts; "auto"
// removes it.
func WriteLocaleMode(writer http.ResponseWriter, mode string) bool {
	if mode == LocaleAuto {
		http.SetCookie(writer, &http.Cookie{
			Name:     LocaleCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
		return true
	}
	locale, ok := NormalizeLocale(mode)
	if !ok {
		return false
	}
	http.SetCookie(writer, &http.Cookie{
		Name:     LocaleCookieName,
		Value:    locale,
		Path:     "/",
		MaxAge:   int(localeCookieTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func ResolveLocale(request *http.Request) string {
	if mode := ReadLocaleMode(request); mode != LocaleAuto {
		return mode
	}
	for _, part := range strings.Split(request.Header.Get("Accept-Language"), ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if locale, ok := NormalizeLocale(tag); ok {
			return locale
		}
	}
	return DefaultLocale
}

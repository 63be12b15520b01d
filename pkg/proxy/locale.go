package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
)

type localePreference struct {
	Mode   string `json:"mode"`
	Locale string `json:"locale"`
}

// LocaleHandler reads and stores the interface language preference. It
// never talks to the backend.
func LocaleHandler(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	switch request.Method {
	case http.MethodGet, http.MethodHead:
		common.WriteJSON(writer, http.StatusOK, localePreference{
			Mode:   session.ReadLocaleMode(request),
			Locale: session.ResolveLocale(request),
		})
	case http.MethodPut:
		var payload struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			common.WriteError(writer, &common.ValidationError{Issues: []common.Issue{{Field: "mode", Message: "Required"}}})
			return
		}
		if !session.WriteLocaleMode(writer, payload.Mode) {
			common.WriteError(writer, &common.ValidationError{Issues: []common.Issue{{Field: "mode", Message: "Unsupported locale"}}})
			return
		}

		detected := request.Clone(request.Context())
		detected.Header.Del("Cookie")
		preference := localePreference{Mode: session.LocaleAuto, Locale: session.ResolveLocale(detected)}
		if locale, ok := session.NormalizeLocale(payload.Mode); ok && payload.Mode != session.LocaleAuto {
			preference = localePreference{Mode: locale, Locale: locale}
		}
		log.Debugf("Locale preference set to %s", preference.Mode)
		common.WriteJSON(writer, http.StatusOK, preference)
	default:
		writer.Header().Set("Allow", "GET, PUT")
		common.WriteJSON(writer, http.StatusMethodNotAllowed, common.ErrorBody{Message: "Method not allowed"})
	}
}

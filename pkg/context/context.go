package context

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Alcereo/edgegate/pkg/auth"
	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/crypt"
	"github.com/Alcereo/edgegate/pkg/fetchers"
	"github.com/Alcereo/edgegate/pkg/filters"
	"github.com/Alcereo/edgegate/pkg/keys"
	"github.com/Alcereo/edgegate/pkg/proxy"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

type context struct {
	config      *ProxyConfiguration
	codec       *session.Codec
	client      *backend.Client
	tagStore    fetchers.TagCachePort
	invalidator cache.Invalidator
	currentUser *fetchers.Fetcher[common.CurrentUser]
	authMethods *fetchers.Fetcher[common.AuthMethods]
	forwarder   *proxy.Forwarder
	router      chi.Router
}

func NewContext(config *ProxyConfiguration) *context {
	return &context{
		config: config,
		codec:  session.NewCodec(config.Session.CookieName),
		router: chi.NewRouter(),
	}
}

func (ctx *context) SetupBackend() error {
	client, err := backend.NewClient(
		ctx.config.Backend.BaseUrl,
		time.Duration(ctx.config.Backend.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		return err
	}
	log.Debugf("Backend base url: %s", client.BaseUrl())
	ctx.client = client
	ctx.forwarder = proxy.NewForwarder(client, ctx.codec)
	return nil
}

func (ctx *context) SetupCache() {
	store := cache.NewGoCacheTagStore(
		time.Duration(ctx.config.Cache.RevalidateSeconds)*time.Second,
		time.Duration(ctx.config.Cache.EvictScheduleMinutes)*time.Minute,
	)
	ctx.tagStore = store
	ctx.invalidator = store

	if urls := ctx.config.Invalidation.NotifyUrls; len(urls) > 0 {
		log.Debugf("Adding invalidation notifier. Targets: %v", urls)
		notifier := cache.NewNotifier(urls, time.Duration(ctx.config.Invalidation.TimeoutSeconds)*time.Second)
		ctx.invalidator = cache.Multi(store, notifier)
	}

	ctx.currentUser = fetchers.NewCurrentUserFetcher(ctx.client, ctx.tagStore)
	ctx.authMethods = fetchers.NewAuthMethodsFetcher(ctx.client, ctx.tagStore)
}

func (ctx *context) transactionStore() auth.TransactionStore {
	switch ctx.config.OAuth.TransactionStore {
	case MemoryTransactions:
		log.Debugf("OAuth transactions kept in memory")
		return auth.NewMemoryTransactionStore(session.IsSecureRequest)
	case CookieTransactions, "":
		if secret := ctx.config.OAuth.TransactionSecret; secret != "" {
			log.Debugf("OAuth verifier cookie is sealed")
			return auth.NewSealedCookieTransactionStore(session.IsSecureRequest, crypt.NewEncryptor(secret))
		}
		return auth.NewCookieTransactionStore(session.IsSecureRequest)
	default:
		panic(fmt.Errorf("Undefined oauth transaction store type: %v.\n", ctx.config.OAuth.TransactionStore))
	}
}

func adapt(handler func(entry *log.Entry, writer http.ResponseWriter, request *http.Request)) http.HandlerFunc {
	return common.Adapt(common.HandlerFunc(handler))
}

func (ctx *context) proxyRoute(method string, pattern string, route proxy.Route) {
	log.Tracef("Adding proxy route. %s %s -> %s", method, pattern, route.Backend)
	ctx.router.Method(method, pattern, common.Adapt(proxy.NewRouteHandler(ctx.forwarder, ctx.invalidator, route)))
}

func (ctx *context) SetupRouters() {
	router := ctx.router
	router.NotFound(func(writer http.ResponseWriter, request *http.Request) {
		common.WriteJSON(writer, http.StatusNotFound, common.ErrorBody{Message: "Not found"})
	})

	// Auth
	credentials := auth.NewCredentialsHandlers(ctx.client, ctx.codec, ctx.invalidator, ctx.authMethods)
	router.Get("/api/auth/me", adapt(credentials.Me))
	router.Post("/api/auth/login", adapt(credentials.Login))
	router.Post("/api/auth/register", adapt(credentials.Register))
	router.Post("/api/auth/logout", adapt(credentials.Logout))
	router.Post("/api/auth/email/request", adapt(credentials.EmailRequest))
	router.Get("/api/auth/methods", adapt(credentials.Methods))

	google := auth.NewGoogleOAuth2Provider(
		auth.GoogleSettings{
			ClientId:      ctx.config.OAuth.Google.ClientId,
			RedirectUri:   ctx.config.OAuth.Google.RedirectUri,
			AuthUrl:       ctx.config.OAuth.Google.AuthUrl,
			Scopes:        ctx.config.OAuth.Google.Scopes,
			PublicBaseUrl: ctx.config.PublicBaseUrl,
		},
		ctx.client,
		ctx.transactionStore(),
		ctx.codec,
		ctx.invalidator,
	)
	router.Get("/api/auth/google", adapt(google.Start))
	router.Get(auth.CallbackPath, adapt(google.Callback))

	ctx.proxyRoute(http.MethodPost, "/api/auth/email/change/confirm", proxy.Route{Backend: "/auth/email/change/confirm", Invalidates: cache.RouteEmailChangeConfirm})
	ctx.proxyRoute(http.MethodPost, "/api/auth/password/set", proxy.Route{Backend: "/auth/password/set", Invalidates: cache.RoutePasswordSet})
	ctx.proxyRoute(http.MethodDelete, "/api/auth/oauth/{id}", proxy.Route{Backend: "/auth/oauth/{id}", Invalidates: cache.RouteOAuthUnlink})

	// Keys
	repository := keys.NewBackendRepository(ctx.client, ctx.invalidator)
	keysHandler := keys.NewHandler(repository, ctx.forwarder, ctx.invalidator, ctx.codec)
	router.Get("/api/keys", adapt(keysHandler.List))
	router.Post("/api/keys", adapt(keysHandler.Create))
	router.Delete("/api/keys/{id}", adapt(keysHandler.Revoke))
	ctx.proxyRoute(http.MethodPatch, "/api/keys/{id}", proxy.Route{Backend: "/keys/{id}", Invalidates: cache.RouteKeyUpdate})
	ctx.proxyRoute(http.MethodGet, "/api/keys/{id}/reveal", proxy.Route{Backend: "/keys/{id}/reveal"})

	// Usage and billing
	ctx.proxyRoute(http.MethodGet, "/api/logs", proxy.Route{Backend: "/logs", Query: true})
	ctx.proxyRoute(http.MethodGet, "/api/billing/topup/status", proxy.Route{
		Backend:     "/billing/topup/status",
		Query:       true,
		Invalidates: cache.RouteTopupCompleted,
		When:        proxy.StatusCompleted,
	})

	// Admin
	ctx.proxyRoute(http.MethodGet, "/api/admin/channels", proxy.Route{Backend: "/admin/channels"})
	ctx.proxyRoute(http.MethodPost, "/api/admin/channels", proxy.Route{Backend: "/admin/channels", Invalidates: cache.RouteChannelCreate})
	ctx.proxyRoute(http.MethodPatch, "/api/admin/channels/{id}", proxy.Route{Backend: "/admin/channels/{id}", Invalidates: cache.RouteChannelUpdate})
	ctx.proxyRoute(http.MethodDelete, "/api/admin/channels/{id}", proxy.Route{Backend: "/admin/channels/{id}", Invalidates: cache.RouteChannelDelete})
	ctx.proxyRoute(http.MethodPatch, "/api/admin/models/{id}", proxy.Route{Backend: "/admin/models/{id}", Invalidates: cache.RouteModelUpdate})
	router.Post("/api/admin/models/refresh", common.Adapt(proxy.NewModelsRefreshHandler(ctx.codec, ctx.client, ctx.invalidator)))
	ctx.proxyRoute(http.MethodPatch, "/api/admin/users/{id}", proxy.Route{Backend: "/admin/users/{id}", Invalidates: cache.RouteAdminUserUpdate})
	ctx.proxyRoute(http.MethodDelete, "/api/admin/users/{id}", proxy.Route{Backend: "/admin/users/{id}", Invalidates: cache.RouteAdminUserDelete})
	ctx.proxyRoute(http.MethodGet, "/api/admin/announcements", proxy.Route{Backend: "/announcements"})
	ctx.proxyRoute(http.MethodPost, "/api/admin/announcements", proxy.Route{Backend: "/admin/announcements", Invalidates: cache.RouteAnnouncementCreate})
	ctx.proxyRoute(http.MethodPatch, "/api/admin/announcements/{id}", proxy.Route{Backend: "/admin/announcements/{id}", Invalidates: cache.RouteAnnouncementUpdate})
	ctx.proxyRoute(http.MethodDelete, "/api/admin/announcements/{id}", proxy.Route{Backend: "/admin/announcements/{id}", Invalidates: cache.RouteAnnouncementDelete})
	ctx.proxyRoute(http.MethodGet, "/api/admin/settings", proxy.Route{Backend: "/admin/settings"})
	ctx.proxyRoute(http.MethodPatch, "/api/admin/settings", proxy.Route{Backend: "/admin/settings", Invalidates: cache.RouteSettingsUpdate})

	// Outer surfaces
	router.Post("/api/webhook/creem", common.Adapt(proxy.NewWebhookHandler(ctx.client)))
	router.Get("/api/preferences/locale", adapt(proxy.LocaleHandler))
	router.Put("/api/preferences/locale", adapt(proxy.LocaleHandler))

	target, err := url.Parse(ctx.client.BaseUrl())
	if err != nil {
		panic(fmt.Errorf("Backend base url is not a url: %v.\n", err))
	}
	tunnel := common.Adapt(proxy.NewReverseProxyHandler(*target, "/v1"))
	router.Handle("/v1", tunnel)
	router.Handle("/v1/*", tunnel)
}

// BuildFilterHandlers puts the log filter and the gate in front of the
// router. Every request passes both.
func (ctx *context) BuildFilterHandlers() common.RequestHandler {
	routerHandler := common.HandlerFunc(func(entry *log.Entry, writer http.ResponseWriter, request *http.Request) {
		ctx.router.ServeHTTP(writer, request)
	})

	gate := filters.NewGateFilter("gate", ctx.codec, ctx.config.Gate.VerifySession, ctx.currentUser)
	gate.SetNext(routerHandler)

	logFilter := filters.CreateLogFilter("access", ctx.config.LogTemplate, gate)
	if logFilter == nil {
		return gate
	}
	return logFilter
}

func (ctx *context) Handler() http.Handler {
	return middleware.Recoverer(middleware.RealIP(common.Root(ctx.BuildFilterHandlers())))
}

func (ctx *context) BuildServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%v", port),
		Handler:           ctx.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Build wires every collaborator in dependency order.
func Build(config *ProxyConfiguration) (*context, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctx := NewContext(config)
	if err := ctx.SetupBackend(); err != nil {
		return nil, err
	}
	ctx.SetupCache()
	ctx.SetupRouters()
	return ctx, nil
}

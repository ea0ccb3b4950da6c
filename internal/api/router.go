package api

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/MotorTG/motortg-crud/internal/api/handlers"
	"github.com/MotorTG/motortg-crud/internal/api/middleware"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/MotorTG/motortg-crud/internal/realtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Inbound events.
const (
	EventRead   = "post:read"
	EventList   = "post:list"
	EventCreate = "post:create"
	EventUpdate = "post:update"
	EventDelete = "post:delete"
)

// Namespaces. Reads are public, writes need an acceptance token.
const (
	PublicNamespace = "/"
	WriteNamespace  = "/post"
)

// SocketPath is where peers open the WebSocket.
const SocketPath = "/socket"

// Dependencies are built by the serve command and shared by every route.
type Dependencies struct {
	Posts posts.Repository
	// DB backs the health and readiness checks; nil reports the database as down.
	DB handlers.Database
	// Adapter fans broadcasts out to other instances; nil keeps them local.
	Adapter realtime.Adapter

	Version   string
	GitCommit string
	BuildDate string
}

type Router struct {
	Handler  http.Handler
	Realtime *realtime.Server

	posts       posts.Repository
	connections *middleware.ConnectionLimiter
}

type cacheInvalidator interface {
	Invalidate()
}

// Deliver hands a broadcast from another instance to local peers. A post
// written elsewhere makes the local page cache stale, so it is dropped first.
func (r *Router) Deliver(msg realtime.Message) {
	switch msg.Event {
	case handlers.EventCreated, handlers.EventUpdated, handlers.EventDeleted:
		if c, ok := r.posts.(cacheInvalidator); ok {
			c.Invalidate()
		}
	}
	r.Realtime.Deliver(msg)
}

// Close drops every peer and stops the background work the routes started.
func (r *Router) Close() {
	r.Realtime.Close()
	r.connections.Stop()
}

func NewRouter(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Router {
	events := NewRealtime(cfg, deps.Posts, deps.Adapter, logger)

	mux := http.NewServeMux()
	connections := middleware.NewConnectionLimiter(cfg.RateLimit)
	mux.Handle(SocketPath, connections.Middleware(events))
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(deps.DB, cfg.Environment))
	mux.Handle("/health", handlers.NewHealthChecker(deps.DB, deps.Adapter != nil, deps.Version, deps.GitCommit).Health())
	mux.Handle("/version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("/metrics", methodMux(map[string]http.Handler{
		http.MethodGet: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}))

	var handler http.Handler = mux
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{Handler: handler, Realtime: events, posts: deps.Posts, connections: connections}
}

// NewRealtime builds the event server with the post handlers bound on both
// namespaces.
func NewRealtime(cfg config.Config, repo posts.Repository, adapter realtime.Adapter, logger zerolog.Logger) *realtime.Server {
	opts := []realtime.Option{
		realtime.WithLogger(logger.With().Str("component", "realtime").Logger()),
		realtime.WithAllowedOrigins(cfg.Realtime.AllowedOrigins),
	}
	if adapter != nil {
		opts = append(opts, realtime.WithAdapter(adapter))
	}
	server := realtime.NewServer(opts...)
	h := handlers.NewPostsHandler(repo, cfg.Posts)

	public := server.Of(PublicNamespace)
	useEventStack(public, cfg)
	public.OnConnection(func(s *realtime.Socket) {
		s.On(EventRead, func(ctx context.Context, _ *realtime.Socket, ev realtime.Event) any {
			return h.ReadPost(ctx, ev.Arg(0))
		})
		s.On(EventList, func(ctx context.Context, _ *realtime.Socket, ev realtime.Event) any {
			page, details := h.ParsePage(ev.Args)
			if len(details) > 0 {
				return handlers.Invalid(details)
			}
			return h.ListPost(ctx, page)
		})
	})

	write := server.Of(WriteNamespace)
	write.Use(middleware.TokenGate(cfg.Auth.PublicKey, cfg.Auth.TokenPayload, logger))
	useEventStack(write, cfg)
	write.OnConnection(func(s *realtime.Socket) {
		s.On(EventCreate, func(ctx context.Context, s *realtime.Socket, ev realtime.Event) any {
			return h.CreatePost(ctx, s, ev.Arg(0))
		})
		s.On(EventUpdate, func(ctx context.Context, s *realtime.Socket, ev realtime.Event) any {
			return h.UpdatePost(ctx, s, ev.Arg(0))
		})
		s.On(EventDelete, func(ctx context.Context, s *realtime.Socket, ev realtime.Event) any {
			return h.DeletePost(ctx, s, ev.Arg(0))
		})
	})

	return server
}

// useEventStack installs the event middlewares outermost first. Panics and
// rate-limited events are counted by their own middleware, so both sit
// outside InstrumentEvents.
func useEventStack(nsp *realtime.Namespace, cfg config.Config) {
	nsp.UseEvents(middleware.TraceEvents()).
		UseEvents(middleware.RecoverEvents()).
		UseEvents(middleware.EventRateLimit(cfg.RateLimit.EventsPerMinute)).
		UseEvents(middleware.InstrumentEvents())
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}

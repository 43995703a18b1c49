package castauth

import (
	"context"
	"net/http"

	"github.com/dpup/castauth/internal/config"
	"github.com/dpup/castauth/logging"
)

// ServerOption customizes the configuration and operation of the server.
type ServerOption func(*builder)

type handler struct {
	prefix      string
	httpHandler http.Handler
	jsonHandler JSONHandler
	perMinute   int
}

// New returns a new server.
func New(opts ...ServerOption) *Server {
	b := &builder{
		host:     Config.String("server.host"),
		port:     Config.Int("server.port"),
		certFile: Config.String("server.tls.certFile"),
		keyFile:  Config.String("server.tls.keyFile"),

		plugins: &Registry{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

type builder struct {
	baseContext context.Context
	host        string
	port        int
	certFile    string
	keyFile     string

	plugins *Registry

	handlers        []handler
	configInjectors []ConfigInjector
}

func (b *builder) build() *Server {
	if b.baseContext == nil {
		b.baseContext = context.Background()
	}

	// Plugins register config keys in their constructors, so defaults can only
	// be resolved once all options have been applied.
	config.EnsureDefaultsLoaded(Config)
	if warnings := config.ValidateConfigKeys(Config); len(warnings) > 0 {
		logging.Warn(b.baseContext, config.FormatValidationWarnings(warnings))
	}

	// Ensure that a logger is available.
	ctx := logging.EnsureLogger(b.baseContext)

	s := &Server{
		baseContext: ctx,
		host:        b.host,
		port:        b.port,
		certFile:    b.certFile,
		keyFile:     b.keyFile,
		httpMux:     http.NewServeMux(),
		plugins:     b.plugins,
	}

	for _, h := range b.handlers {
		var handler http.Handler
		if h.jsonHandler != nil {
			handler = wrapJSONHandler(h.jsonHandler)
		} else {
			handler = h.httpHandler
		}
		if h.perMinute > 0 {
			handler = rateLimit(handler, h.perMinute)
		}
		handler = httpContextMiddleware(handler, b.configInjectors)
		s.httpMux.Handle(h.prefix, handler)
	}

	return s
}

// WithContext sets the base context for the server. This context will be used
// for all requests and can be used to inject values into the context.
func WithContext(ctx context.Context) ServerOption {
	return func(b *builder) {
		b.baseContext = ctx
	}
}

// WithHost configures the hostname or IP the server will listen on.
//
// Config key: `server.host`.
func WithHost(host string) ServerOption {
	return func(b *builder) {
		b.host = host
	}
}

// WithPort configures the port the server will listen on.
//
// Config key: `server.port`.
func WithPort(port int) ServerOption {
	return func(b *builder) {
		b.port = port
	}
}

// WithTLS configures the server to allow traffic via TLS using the provided
// cert. If not called server will use HTTP/H2C.
//
// Config keys: `server.tls.certFile`, `server.tls.keyFile`.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(b *builder) {
		b.certFile = certFile
		b.keyFile = keyFile
	}
}

// WithStaticFiles configures the server to serve static files from disk
// for HTTP requests that match the given prefix.
func WithStaticFiles(prefix, dir string) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			prefix:      prefix,
			httpHandler: http.FileServer(http.Dir(dir)),
		})
	}
}

// WithHTTPHandler adds an HTTP handler.
func WithHTTPHandler(prefix string, h http.Handler) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			prefix:      prefix,
			httpHandler: h,
		})
	}
}

// WithHTTPHandlerFunc adds an HTTP handler function.
func WithHTTPHandlerFunc(prefix string, h func(http.ResponseWriter, *http.Request)) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			prefix:      prefix,
			httpHandler: http.HandlerFunc(h),
		})
	}
}

// WithJSONHandler adds a HTTP handler which returns JSON, serialized with a
// consistent error envelope.
func WithJSONHandler(prefix string, h JSONHandler) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			prefix:      prefix,
			jsonHandler: h,
		})
	}
}

// WithRateLimitedJSONHandler adds a JSON handler whose route is limited to
// perMinute requests per client IP. Excess requests receive a RATE_LIMITED
// error response with a Retry-After header.
func WithRateLimitedJSONHandler(prefix string, h JSONHandler, perMinute int) ServerOption {
	return func(b *builder) {
		b.handlers = append(b.handlers, handler{
			prefix:      prefix,
			jsonHandler: h,
			perMinute:   perMinute,
		})
	}
}

// WithPlugin registers a plugin with the server's registry. Plugins will be
// initialized at server start. If the Plugin implements `OptionProvider` then
// additional server options can be configured for the server.
func WithPlugin(p Plugin) ServerOption {
	return func(b *builder) {
		if so, ok := p.(OptionProvider); ok {
			for _, opt := range so.ServerOptions() {
				opt(b)
			}
		}
		b.plugins.Register(p)
	}
}

// WithRequestConfig adds a ConfigInjector to the server. The injector will be
// called for every request and can be used to inject request scoped
// configuration into the context.
func WithRequestConfig(injector ConfigInjector) ServerOption {
	return func(b *builder) {
		b.configInjectors = append(b.configInjectors, injector)
	}
}

// OptionProvider can be implemented by plugins to augment the server at build
// time.
type OptionProvider interface {
	ServerOptions() []ServerOption
}

// Annotates the request context with configs so handlers can resolve request
// scoped values such as the external address and the current identity.
func httpContextMiddleware(h http.Handler, cf []ConfigInjector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := injectConfigs(r.Context(), cf)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

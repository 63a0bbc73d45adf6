// Package web is the HTTP surface: ActivityPub inboxes and documents, and
// the client streaming API.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/deemkeen/tusk/activitypub"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/streaming"
	"github.com/deemkeen/tusk/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Store interface {
	TokenStore
	LocalUserByName(ctx context.Context, name string) (*domain.User, error)
	UserById(ctx context.Context, id string) (*domain.User, error)
	PostById(ctx context.Context, id string) (*domain.Post, error)
	MentionedUsers(ctx context.Context, postID string) ([]domain.User, error)
}

type InboxHandler interface {
	Handle(ctx context.Context, act activitypub.Activity) (activitypub.Outcome, error)
}

// SignatureVerifier returns the user whose key signed r.
type SignatureVerifier interface {
	Verify(ctx context.Context, r *http.Request, body []byte) (*domain.User, error)
}

type Server struct {
	conf     *util.AppConfig
	store    Store
	inbox    InboxHandler
	verifier SignatureVerifier
	bus      *streaming.Bus
	log      zerolog.Logger
}

func NewServer(conf *util.AppConfig, store Store, inbox InboxHandler, verifier SignatureVerifier, bus *streaming.Bus, logger zerolog.Logger) *Server {
	return &Server{
		conf:     conf,
		store:    store,
		inbox:    inbox,
		verifier: verifier,
		bus:      bus,
		log:      logger.With().Str("component", "web").Logger(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	if !s.conf.Conf.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.Use(gin.Recovery(), RequestLogger(s.log))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(10), 20)))

	stream := g.Group("/api/v1/streaming")
	stream.GET("/health", s.handleHealth)
	stream.GET("", AuthMiddleware(s.store), s.handleSocket)
	stream.GET("/user/notification", AuthMiddleware(s.store), s.handleNotificationStream)

	if s.conf.Conf.WithAp {
		// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)
		maxBody := MaxBytesMiddleware(s.conf.Conf.MaxBodyBytes)

		g.POST("/ap/inbox", RateLimitMiddleware(apLimiter), maxBody, s.handleSharedInbox)
		g.POST("/u/:name/ap/inbox", RateLimitMiddleware(apLimiter), maxBody, s.handleActorInbox)

		docs := g.Group("", gzip.Gzip(gzip.DefaultCompression))
		docs.GET("/u/:name", s.handleActor)
		docs.GET("/p/:id", s.handleNote)
	}
	return g
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// streaming handlers end with ctx instead of holding up Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

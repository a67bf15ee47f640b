package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/appctx"
	"github.com/deemkeen/andstatus/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxActivityBytes = 1 * 1024 * 1024

type Server struct {
	app     *appctx.Context
	engine  *gin.Engine
	global  *RateLimiter
	ingest  *RateLimiter
	baseURL string
	log     *log.Logger
}

func NewServer(app *appctx.Context) *Server {
	s := &Server{
		app:     app,
		engine:  gin.New(),
		global:  NewRateLimiter(rate.Limit(10), 20),
		ingest:  NewRateLimiter(rate.Limit(5), 10),
		baseURL: fmt.Sprintf("http://%s:%d", app.Conf.Conf.Host, app.Conf.Conf.HttpPort),
		log:     util.Logger("Web"),
	}

	g := s.engine
	g.Use(gin.Recovery(), s.requestLog())
	g.Use(gzip.Gzip(gzip.DefaultCompression))
	g.Use(RateLimitMiddleware(s.global))

	g.GET("/status", s.handleStatus)
	g.POST("/fix", s.handleFix)
	g.DELETE("/fix", s.handleCancelFix)
	g.POST("/ingest/:origin", RateLimitMiddleware(s.ingest), MaxBytesMiddleware(maxActivityBytes), s.handleIngest)
	g.GET("/conversations/:noteId/feed", s.handleConversationFeed)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.app.Conf.Conf.Host, s.app.Conf.Conf.HttpPort),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.global.Run(ctx)
	go s.ingest.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Starting admin server", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// parseIds reads a comma separated list of note ids.
func parseIds(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid note id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

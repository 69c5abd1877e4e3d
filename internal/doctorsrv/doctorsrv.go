// Package doctorsrv serves the doctor report over loopback HTTP for
// `asp doctor --serve`, grounded on the teacher's internal/api.Server
// (gin.New + gin.Recovery, an Addr/Handler http.Server, ListenAndServe in
// a goroutine, graceful Shutdown on ctx.Done). Unlike the teacher's API
// server this one never binds beyond 127.0.0.1 and exists only to let CI
// dashboards poll `doctor` instead of shelling out to the CLI.
package doctorsrv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"asp/internal/version"
	"asp/pkg/doctor"
)

// Server is a loopback-only HTTP front for a doctor report.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// ReportFunc produces a fresh doctor report per request, so /healthz
// always reflects current state rather than a snapshot taken at startup.
type ReportFunc func(ctx context.Context) doctor.Report

// Listen binds to 127.0.0.1:port (port 0 picks an OS-assigned port) and
// returns a Server plus the port actually bound, without serving yet.
func Listen(port int, report ReportFunc) (*Server, int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, 0, fmt.Errorf("doctorsrv: failed to bind 127.0.0.1:%d: %w", port, err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		r := report(c.Request.Context())
		status := http.StatusOK
		if !r.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, r)
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.GetVersionString()})
	})
	router.GET("/snapshots", func(c *gin.Context) {
		r := report(c.Request.Context())
		c.JSON(http.StatusOK, r.Snapshots)
	})
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "asp-doctor", "version": version.GetVersionString()})
	})

	return &Server{
		httpServer: &http.Server{Handler: router},
		listener:   listener,
	}, listener.Addr().(*net.TCPAddr).Port, nil
}

// Serve blocks, serving requests until ctx is cancelled, then shuts down
// gracefully within a short timeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

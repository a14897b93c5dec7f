package server

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"couchcontrol/internal/version"
)

//go:embed assets
var assets embed.FS

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/", s.handleIndex)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/status", s.handleStatus)
	r.GET("/static/*filepath", s.handleStatic)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("http request")
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	s.manager.Touch(s.clock.Now())
	if dir := s.cfg.Server.StaticDir; dir != "" {
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err == nil {
			c.File(index)
			return
		}
	}
	page, err := assets.ReadFile("assets/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "index missing")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) handleStatic(c *gin.Context) {
	if dir := s.cfg.Server.StaticDir; dir != "" {
		c.FileFromFS(c.Param("filepath"), http.Dir(dir))
		return
	}
	static, err := fs.Sub(assets, "assets/static")
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.FileFromFS(c.Param("filepath"), http.FS(static))
}

type statusResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Protocol    string         `json:"protocol"`
	Clients     int            `json:"clients"`
	Screen      *screenStatus  `json:"screen,omitempty"`
	Settings    settingsStatus `json:"settings"`
	Encoder     string         `json:"encoder"`
	Input       string         `json:"input"`
	PINRequired bool           `json:"pin_required"`
	WSPort      int            `json:"ws_port"`
	Process     processStatus  `json:"process"`
}

type screenStatus struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	ScaledWidth  int `json:"scaled_width"`
	ScaledHeight int `json:"scaled_height"`
}

type settingsStatus struct {
	Quality int     `json:"quality"`
	FPS     int     `json:"fps"`
	Scale   float64 `json:"scale"`
	Monitor int     `json:"monitor"`
}

type processStatus struct {
	PID      int32  `json:"pid"`
	RSSBytes uint64 `json:"rss_bytes,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	s.manager.Touch(s.clock.Now())

	settings := s.pipeline.Settings()
	resp := statusResponse{
		Status:   "running",
		Version:  version.Version,
		Protocol: version.Protocol,
		Clients:  s.manager.Count(),
		Settings: settingsStatus{
			Quality: settings.Quality,
			FPS:     s.streamer.FPS(),
			Scale:   settings.Scale,
			Monitor: settings.Monitor,
		},
		Encoder:     s.pipeline.EncoderName(),
		Input:       s.injector.Backend(),
		PINRequired: s.cfg.Security.PIN != "",
		WSPort:      s.cfg.WSPort(),
		Process:     processStatus{PID: s.proc.Pid},
	}
	if g, err := s.pipeline.Geometry(); err == nil {
		resp.Screen = &screenStatus{
			Width:        g.Width,
			Height:       g.Height,
			ScaledWidth:  g.ScaledWidth,
			ScaledHeight: g.ScaledHeight,
		}
	} else {
		s.log.Debug().Err(err).Msg("status without screen geometry")
	}
	if mem, err := s.proc.MemoryInfoWithContext(c.Request.Context()); err == nil {
		resp.Process.RSSBytes = mem.RSS
	}
	c.JSON(http.StatusOK, resp)
}

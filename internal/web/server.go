package web

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tnmt-1/sns-multi-posts/internal/boot"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/bluesky"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/misskey"
	"github.com/tnmt-1/sns-multi-posts/internal/crosspost/twitter"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer serves the embedded HTML templates.
type Renderer struct {
	templates *template.Template
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// Server wires the configuration, dispatcher and publisher factories behind
// the HTTP handlers.
type Server struct {
	cfg        boot.Config
	dispatcher *crosspost.Dispatcher
}

// NewServer builds the server and registers one publisher factory per
// network.
func NewServer(cfg boot.Config) *Server {
	dispatcher := crosspost.NewDispatcher(cfg.PostTimeout)
	dispatcher.Register(crosspost.NetworkTwitter, twitter.NewPublisherFactory(twitterAppConfig(cfg)))
	dispatcher.Register(crosspost.NetworkBluesky, bluesky.NewPublisherFactory(bluesky.Config{PDSURL: cfg.BlueskyPDSURL}))
	dispatcher.Register(crosspost.NetworkMisskey, misskey.NewPublisherFactory())

	return &Server{cfg: cfg, dispatcher: dispatcher}
}

func twitterAppConfig(cfg boot.Config) twitter.AppConfig {
	return twitter.AppConfig{
		ConsumerKey:    cfg.TwitterConsumerKey,
		ConsumerSecret: cfg.TwitterConsumerSecret,
		ClientID:       cfg.TwitterClientID,
		ClientSecret:   cfg.TwitterClientSecret,
		RedirectURL:    cfg.BaseURL + "/auth/callback/twitter",
	}
}

// Echo assembles the echo instance: middleware, renderer and routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("32M"))
	e.Use(NewSessionMiddleware(s.cfg.SecretKey))
	e.Renderer = &Renderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}

	e.GET("/", s.handleIndex)
	e.GET("/health", s.handleHealth)

	auth := e.Group("/auth")
	auth.GET("/login/:provider", s.handleLogin)
	auth.POST("/login/bluesky", s.handleBlueskyLogin)
	auth.POST("/login/twitter1", s.handleTwitterOAuth1Login)
	auth.POST("/login/misskey", s.handleMisskeyLogin)
	auth.GET("/callback/:provider", s.handleCallback)
	auth.GET("/logout", s.handleLogout)

	e.POST("/post/", s.handleCreatePost)
	e.POST("/post", s.handleCreatePost)

	return e
}

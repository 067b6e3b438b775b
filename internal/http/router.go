package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wenliu-dev/coursehub/internal/auth"
	"github.com/wenliu-dev/coursehub/internal/cache"
	"github.com/wenliu-dev/coursehub/internal/config"
	"github.com/wenliu-dev/coursehub/internal/http/handlers"
	"github.com/wenliu-dev/coursehub/internal/http/middlewares"
	"github.com/wenliu-dev/coursehub/internal/notify"
	"github.com/wenliu-dev/coursehub/internal/observability"
	"github.com/wenliu-dev/coursehub/internal/repo/postgres"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cacheClient *cache.Client, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("coursehub"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	if cfg.MaxBodyBytes > 0 {
		r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	prom := observability.NewProm(reg)
	r.Use(prom.GinHandleMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// health
	pingDB := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	pingCache := func() error {
		if cacheClient == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return cacheClient.Ping(ctx)
	}

	h := handlers.NewHealthHandler(pingDB, pingCache)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	coursesRepo := postgres.NewCoursesRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	authMW := middlewares.NewAuthMiddleware(jwtManager)

	notifier := notify.NewProtectedNotifier(notify.NewLogNotifier(log), notify.ProtectedNotifierConfig{})

	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshRepo, cfg, log)
	coursesHandler := handlers.NewCoursesHandler(coursesRepo, cacheClient, prom, notifier, log)

	authLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)
	apiLimiter := middlewares.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute)

	// public user routes
	users := r.Group("/api/user")
	users.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	users.GET("/testAPI", authHandler.TestAPI)
	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/refresh", authHandler.Refresh)
	users.POST("/logout", authHandler.Logout)

	// every course route sits behind token verification
	courses := r.Group("/api/courses")
	courses.Use(authMW.RequireAuth())
	courses.Use(apiLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	courses.GET("", coursesHandler.ListCourses)
	courses.GET("/:id", coursesHandler.GetCourseByID)
	courses.GET("/instructor/:id", coursesHandler.ListByInstructor)
	courses.GET("/student/:id", coursesHandler.ListByStudent)
	courses.GET("/findByName/:name", coursesHandler.FindByName)
	courses.POST("", coursesHandler.CreateCourse)
	courses.POST("/enroll/:id", coursesHandler.Enroll)
	courses.PATCH("/:id", coursesHandler.UpdateCourse)
	courses.DELETE("/:id", coursesHandler.DeleteCourse)

	return r
}

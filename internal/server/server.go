package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/handler"
	"liveclass-backend/internal/presence"
)

// Server Fiber 서버 래퍼
type Server struct {
	app               *fiber.App
	cfg               *config.Config
	db                *gorm.DB
	hub               *handler.RoomHub
	sessionHandler    *handler.SessionHandler
	roomWSHandler     *handler.RoomWSHandler
	conferenceHandler *handler.ConferenceHandler
	healthHandler     *handler.HealthHandler
	jwtManager        *auth.JWTManager
	presence          *presence.Manager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "LiveClass Sync Relay",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Redis presence 초기화 (선택적)
	var pres *presence.Manager
	pres, err := presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Room.PresenceTTL)
	if err != nil {
		log.Printf("⚠️ Redis presence initialization failed: %v (online status will be unavailable)", err)
		pres = nil
	} else {
		log.Printf("✅ Redis presence initialized (addr: %s)", cfg.Redis.Addr)
	}

	serverID := uuid.NewString()
	hub := handler.NewRoomHub(cfg, pres, serverID)
	sessionHandler := handler.NewSessionHandler(db, hub, pres)

	return &Server{
		app:               app,
		cfg:               cfg,
		db:                db,
		hub:               hub,
		sessionHandler:    sessionHandler,
		roomWSHandler:     handler.NewRoomWSHandler(hub, sessionHandler),
		conferenceHandler: handler.NewConferenceHandler(cfg, db),
		healthHandler:     handler.NewHealthHandler(db, pres),
		jwtManager:        jwtManager,
		presence:          pres,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter (세션 생성 남용 방지)
	createLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Session 라우트 그룹 (인증 필요)
	sessionGroup := s.app.Group("/api/sessions", auth.AuthMiddleware(s.jwtManager))
	sessionGroup.Post("", createLimiter, s.sessionHandler.CreateSession)
	sessionGroup.Get("/:code", s.sessionHandler.GetSession)
	sessionGroup.Post("/:code/start", s.sessionHandler.StartSession)
	sessionGroup.Post("/:code/complete", s.sessionHandler.CompleteSession)
	sessionGroup.Post("/:code/join", s.sessionHandler.JoinSession)
	sessionGroup.Post("/:code/leave", s.sessionHandler.LeaveSession)
	sessionGroup.Get("/:code/participants", s.sessionHandler.GetParticipants)

	// Beacon 퇴장: sendBeacon은 헤더를 못 싣기 때문에 토큰을 쿼리로 받는다
	s.app.Post("/api/sessions/:code/leave-beacon",
		auth.BeaconAuthMiddleware(s.jwtManager), s.sessionHandler.LeaveBeacon)

	// 화상회의 토큰 라우트
	s.app.Post("/api/conference/token",
		auth.AuthMiddleware(s.jwtManager), s.conferenceHandler.GenerateToken)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 세션 룸 엔드포인트
	s.app.Get("/ws/rooms/:code", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 토큰은 쿼리로 받는다 (브라우저 WebSocket은 헤더를 못 싣는다)
		tokenString := c.Query("token")
		if tokenString == "" {
			tokenString = c.Cookies("access_token")
		}
		if tokenString == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		code := c.Params("code")

		// 참가자 등록 확인
		isMember, role := s.sessionHandler.IsParticipant(code, claims.UserID)
		if !isMember {
			return c.SendStatus(fiber.StatusForbidden)
		}

		c.Locals("sessionCode", code)
		c.Locals("userId", claims.UserID)
		c.Locals("nickname", claims.Nickname)
		c.Locals("role", handler.RoleToWire(role))

		return c.Next()
	}, websocket.New(s.roomWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 LiveClass Sync Relay starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/rooms/:code", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	if s.presence != nil {
		s.presence.Close()
	}
	return s.app.ShutdownWithTimeout(30 * time.Second)
}

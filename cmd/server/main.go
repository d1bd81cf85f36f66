package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yutakm/textswap/internal/api"
	"github.com/yutakm/textswap/internal/auth"
	"github.com/yutakm/textswap/internal/database"
	"github.com/yutakm/textswap/internal/realtime"
	"github.com/yutakm/textswap/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	env := os.Getenv("ENV")
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	auth.InitJWTKey([]byte(jwtSecret))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Fallback to individual connection parameters if DATABASE_URL not set
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		dbName := os.Getenv("DB_NAME")
		dbUser := os.Getenv("DB_USER")
		dbPass := os.Getenv("DB_PASSWORD")

		if dbHost == "" || dbName == "" || dbUser == "" {
			log.Fatal("Database connection details missing. Set DATABASE_URL or individual DB_* variables")
		}

		dbURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			dbUser, dbPass, dbHost, dbPort, dbName,
		)
	}

	db, err := database.NewPostgresDB(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database successfully")

	// Object storage for textbook images; optional so the API can run
	// without MinIO during development.
	var store storage.ObjectStore
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		minioStore, err := storage.NewMinioStore(
			endpoint,
			os.Getenv("MINIO_ACCESS_KEY"),
			os.Getenv("MINIO_SECRET_KEY"),
			getenvDefault("MINIO_BUCKET", "textbook"),
			os.Getenv("MINIO_USE_SSL") == "true",
		)
		if err != nil {
			log.Fatalf("Failed to connect to object storage: %v", err)
		}
		store = minioStore
		log.Println("Connected to object storage")
	} else {
		log.Println("Warning: MINIO_ENDPOINT not set, image upload disabled")
	}

	router := gin.Default()

	allowedOriginsStr := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := strings.Split(allowedOriginsStr, ",")

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Change feed hub and its websocket bridge
	hub := realtime.NewHub()
	wsManager := realtime.NewManager(hub)
	go wsManager.Run()

	authHandler := api.NewAuthHandler(db)
	textbookHandler := api.NewTextbookHandler(db, store)
	wishlistHandler := api.NewWishlistHandler(db, store)
	requestHandler := api.NewRequestHandler(db, hub)
	messageHandler := api.NewMessageHandler(db, hub)

	// Public routes (no authentication required)
	router.POST("/api/auth/register", authHandler.Register)
	router.POST("/api/auth/login", authHandler.Login)

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.GET("/auth/me", authHandler.GetMe)
		authorized.PUT("/auth/email", authHandler.UpdateEmail)
		authorized.PUT("/auth/password", authHandler.UpdatePassword)

		// Textbook routes
		authorized.POST("/textbooks", textbookHandler.Create)
		authorized.GET("/textbooks", textbookHandler.Search)
		authorized.GET("/textbooks/mine", textbookHandler.Mine)
		authorized.GET("/textbooks/:textbookID", textbookHandler.Get)
		authorized.PUT("/textbooks/:textbookID", textbookHandler.Update)
		authorized.DELETE("/textbooks/:textbookID", textbookHandler.Delete)
		authorized.POST("/textbooks/:textbookID/image", textbookHandler.UploadImage)

		// Wishlist routes
		authorized.POST("/wishlist", wishlistHandler.Add)
		authorized.GET("/wishlist", wishlistHandler.List)
		authorized.DELETE("/wishlist/:textbookID", wishlistHandler.Remove)

		// Request routes
		authorized.POST("/requests", requestHandler.Create)
		authorized.PUT("/requests/:requestID", requestHandler.UpdateStatus)
		authorized.DELETE("/requests/:requestID", requestHandler.Withdraw)
		authorized.GET("/requests/received", requestHandler.Received)
		authorized.GET("/requests/sent", requestHandler.Sent)
		authorized.GET("/chats", requestHandler.Chats)

		// Message routes
		authorized.POST("/messages", messageHandler.Send)
		authorized.GET("/messages", messageHandler.List)
		authorized.PUT("/messages/read", messageHandler.MarkRead)
	}

	// WebSocket route with special middleware for token in URL parameter,
	// since browsers cannot set headers on websocket dials
	router.GET("/api/ws", func(c *gin.Context) {
		if tokenParam := c.Query("token"); tokenParam != "" {
			claims, err := auth.ValidateToken(tokenParam)
			if err == nil {
				if userUUID, err := uuid.Parse(claims.UserID); err == nil {
					c.Set("userID", userUUID)
					c.Set("email", claims.Email)
					wsManager.HandleWebSocket(c)
					return
				}
			}
		}

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			claims, err := auth.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err == nil {
				if userUUID, err := uuid.Parse(claims.UserID); err == nil {
					c.Set("userID", userUUID)
					c.Set("email", claims.Email)
					wsManager.HandleWebSocket(c)
					return
				}
			}
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

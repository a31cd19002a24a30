package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "scribe/handler/http"
	"scribe/src/infrastructure/integrations/ollama"
	"scribe/src/infrastructure/integrations/tts"
	"scribe/src/infrastructure/job"
	"scribe/src/infrastructure/log"
	"scribe/src/storage/minioctrl"
	"scribe/src/storage/searchctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scribe API server",
	Long:  `The serve command starts the HTTP server that accepts processing requests and answers job status polls.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	// Initialize PostgreSQL connection
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}
	if err := db.AutoMigrate(&job.Job{}); err != nil {
		log.Error(err, "Failed to migrate job table")
		return
	}

	// Initialize AMQP publisher for job dispatch
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	// Initialize MinIO storage and make sure both buckets exist
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to create MinIO service")
		return
	}
	uploadBucket := viper.GetString("minio.upload_bucket")
	resultBucket := viper.GetString("minio.result_bucket")
	for _, bucket := range []string{uploadBucket, resultBucket} {
		if err := minioService.EnsureBucketExists(context.Background(), bucket); err != nil {
			log.Error(err, "Failed to ensure bucket exists", "bucket", bucket)
			return
		}
	}

	// Initialize transcript search index
	searchService, err := searchctrl.NewSearchService(
		viper.GetString("elasticsearch.url"),
		viper.GetString("elasticsearch.index"),
	)
	if err != nil {
		log.Error(err, "Failed to create search service")
		return
	}

	// Initialize external service clients used by the API surface
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 30 * time.Second,
	})
	ttsClient := tts.NewClient(viper.GetString("tts.url"), &http.Client{
		Timeout: 30 * time.Second,
	})

	// The API process only creates and reads jobs; execution happens in the
	// worker, so no processing task is attached here.
	jobRepo := job.NewPostgresRepository(db)
	jobService := job.NewService(amqpPublisher, jobRepo, nil)

	handler := httpHdlr.NewHandler(httpHdlr.Config{
		Jobs:           jobService,
		Store:          minioService,
		UploadBucket:   uploadBucket,
		ResultBucket:   resultBucket,
		MaxUploadBytes: viper.GetInt64("server.max_upload_bytes"),
		TTSClient:      ttsClient,
		OllamaClient:   ollamaClient,
		DefaultModel:   viper.GetString("ollama.model"),
		Search:         searchService,
	})

	// Setup gin router
	r := gin.Default()
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Close database connection
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else {
		if err := sqlDB.Close(); err != nil {
			log.Error(err, "Error closing database connection")
		}
	}

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}

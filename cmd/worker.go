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
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"scribe/src/infrastructure/integrations/docconv"
	"scribe/src/infrastructure/integrations/ollama"
	"scribe/src/infrastructure/integrations/openqm"
	"scribe/src/infrastructure/integrations/tts"
	"scribe/src/infrastructure/integrations/whisper"
	"scribe/src/infrastructure/integrations/youtube"
	"scribe/src/infrastructure/job"
	"scribe/src/infrastructure/log"
	"scribe/src/storage/minioctrl"
	"scribe/src/storage/searchctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background processing worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

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
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&job.Job{}); err != nil {
		return fmt.Errorf("failed to migrate job table: %w", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize MinIO storage
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %w", err)
	}

	// Initialize transcript search index
	searchService, err := searchctrl.NewSearchService(
		viper.GetString("elasticsearch.url"),
		viper.GetString("elasticsearch.index"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize search service: %w", err)
	}

	// Initialize external processing clients. Transcription and generation
	// run long, so their clients carry generous timeouts.
	whisperClient := whisper.NewClient(
		viper.GetString("whisper.url"),
		viper.GetString("whisper.model"),
		&http.Client{Timeout: 5 * time.Minute},
	)
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 5 * time.Minute,
	})
	ttsClient := tts.NewClient(viper.GetString("tts.url"), &http.Client{
		Timeout: 2 * time.Minute,
	})
	docClient := docconv.NewClient(viper.GetString("docconv.url"), &http.Client{
		Timeout: 2 * time.Minute,
	})
	ytClient := youtube.NewClient(viper.GetString("youtube.transcript_url"), &http.Client{
		Timeout: time.Minute,
	})
	qmClient, err := openqm.NewClient(
		viper.GetString("openqm.gateway_url"),
		viper.GetString("openqm.account"),
		viper.GetString("openqm.file"),
		&http.Client{Timeout: 30 * time.Second},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize openqm client: %w", err)
	}

	// Initialize the job tracker and processing pipeline
	jobRepo := job.NewPostgresRepository(db)
	task := job.NewProcessingTask(jobRepo, job.ProcessingTaskConfig{
		Store:         minioService,
		UploadBucket:  viper.GetString("minio.upload_bucket"),
		ResultBucket:  viper.GetString("minio.result_bucket"),
		WhisperClient: whisperClient,
		OllamaClient:  ollamaClient,
		DefaultModel:  viper.GetString("ollama.model"),
		TTSClient:     ttsClient,
		DocClient:     docClient,
		YouTubeClient: ytClient,
		Archive:       qmClient,
		Search:        searchService,
	})
	jobService := job.NewService(amqpPublisher, jobRepo, task)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		job.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessMessage(msg)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fail running jobs whose worker stopped reporting
	stuckAfter := viper.GetDuration("worker.stuck_after")
	reapInterval := viper.GetDuration("worker.reap_interval")
	reaper := job.NewReaper(jobRepo, stuckAfter, reapInterval)
	go reaper.Run(ctx)

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "router stopped")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-router.Running()
	log.Info("Worker stopped")

	return nil
}

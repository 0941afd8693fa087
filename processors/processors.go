package processors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/priceworks/billing-engine/config/database"
	"github.com/priceworks/billing-engine/config/kafka"
	"github.com/priceworks/billing-engine/config/redis"
	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/processors/billing_services"
	"github.com/priceworks/billing-engine/utils"
)

var (
	logger                *slog.Logger
	subscriptionStore     models.SubscriptionStore
	reconciliationService *billing_services.ReconciliationService
	usageTracker          *billing_services.UsageTracker
	syncFlagStore         models.Flagger
	deadLetterProducer    kafka.MessageProducer
	kafkaConfig           kafka.ServerConfig
)

const (
	envEnv                              = "ENV"
	envBillingApiToken                  = "BILLING_API_TOKEN"
	envBillingApiURL                    = "BILLING_API_URL"
	envBillingDatabaseMaxConnections    = "BILLING_ENGINE_DATABASE_MAX_CONNECTIONS"
	envBillingKafkaBillingEventsTopic   = "BILLING_KAFKA_BILLING_EVENTS_TOPIC"
	envBillingKafkaBootstrapServers     = "BILLING_KAFKA_BOOTSTRAP_SERVERS"
	envBillingKafkaConsumerGroup        = "BILLING_KAFKA_CONSUMER_GROUP"
	envBillingKafkaDeadLetterTopic      = "BILLING_KAFKA_DEAD_LETTER_TOPIC"
	envBillingKafkaPassword             = "BILLING_KAFKA_PASSWORD"
	envBillingKafkaProductEventsTopic   = "BILLING_KAFKA_PRODUCT_EVENTS_TOPIC"
	envBillingKafkaScramAlgorithm       = "BILLING_KAFKA_SCRAM_ALGORITHM"
	envBillingKafkaTLS                  = "BILLING_KAFKA_TLS"
	envBillingKafkaUsername             = "BILLING_KAFKA_USERNAME"
	envBillingRedisStoreDB              = "BILLING_REDIS_STORE_DB"
	envBillingRedisStorePassword        = "BILLING_REDIS_STORE_PASSWORD"
	envBillingRedisStoreTLS             = "BILLING_REDIS_STORE_TLS"
	envBillingRedisStoreURL             = "BILLING_REDIS_STORE_URL"
)

func initProducer(ctx context.Context, topicEnv string) utils.Result[*kafka.Producer] {
	topic := os.Getenv(topicEnv)
	if topic == "" {
		return utils.FailedResult[*kafka.Producer](fmt.Errorf("%s variable is required", topicEnv))
	}

	producer, err := kafka.NewProducer(
		kafkaConfig,
		&kafka.ProducerConfig{
			Topic: topic,
		})
	if err != nil {
		return utils.FailedResult[*kafka.Producer](err)
	}

	err = producer.Ping(ctx)
	if err != nil {
		return utils.FailedResult[*kafka.Producer](err)
	}

	return utils.SuccessResult(producer)
}

func initFlagStore(ctx context.Context, name string) (*models.FlagStore, error) {
	redisDb, err := utils.GetEnvAsInt(envBillingRedisStoreDB, 0)
	if err != nil {
		return nil, err
	}

	redisConfig := redis.RedisConfig{
		Address:  os.Getenv(envBillingRedisStoreURL),
		Password: os.Getenv(envBillingRedisStorePassword),
		DB:       redisDb,
		UseTLS:   utils.GetEnvAsBool(envBillingRedisStoreTLS, os.Getenv(envEnv) == "production"),
	}

	db, err := redis.NewRedisDB(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	return models.NewFlagStore(ctx, db, name), nil
}

func initConsumerGroup(topicEnv string, process func(context.Context, []*kgo.Record) []*kgo.Record) (*kafka.ConsumerGroup, error) {
	topic := os.Getenv(topicEnv)
	if topic == "" {
		return nil, fmt.Errorf("%s variable is required", topicEnv)
	}

	return kafka.NewConsumerGroup(
		kafkaConfig,
		&kafka.ConsumerGroupConfig{
			Topic:          topic,
			ConsumerGroup:  os.Getenv(envBillingKafkaConsumerGroup),
			ProcessRecords: process,
		})
}

type Config struct {
	Logger       *slog.Logger
	UseTelemetry bool
}

// StartProcessingEvents wires the engine and consumes the billing and
// product event topics until ctx is canceled.
func StartProcessingEvents(ctx context.Context, cfg Config) error {
	logger = cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverBrokers := utils.ParseBrokersEnv(os.Getenv(envBillingKafkaBootstrapServers))
	if len(serverBrokers) == 0 {
		return fmt.Errorf("%s variable is required", envBillingKafkaBootstrapServers)
	}

	kafkaConfig = kafka.ServerConfig{
		ScramAlgorithm: os.Getenv(envBillingKafkaScramAlgorithm),
		TLS:            os.Getenv(envBillingKafkaTLS) == "true",
		Servers:        serverBrokers,
		UseTelemetry:   cfg.UseTelemetry,
		UserName:       os.Getenv(envBillingKafkaUsername),
		Password:       os.Getenv(envBillingKafkaPassword),
	}

	deadLetterProducerResult := initProducer(ctx, envBillingKafkaDeadLetterTopic)
	if deadLetterProducerResult.Failure() {
		utils.CaptureErrorResult(deadLetterProducerResult)
		return deadLetterProducerResult.Error()
	}
	deadLetterProducer = deadLetterProducerResult.Value()

	maxConns, err := utils.GetEnvAsInt(envBillingDatabaseMaxConnections, 200)
	if err != nil {
		utils.CaptureError(err)
		return err
	}

	dbConfig := database.DBConfig{
		Url:      os.Getenv("DATABASE_URL"),
		MaxConns: int32(maxConns),
	}

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Error connecting to the database", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return err
	}
	defer db.Close()

	catalog, err := plans.Default()
	if err != nil {
		return err
	}

	apiStore := models.NewApiStore(db, catalog.FreePlan().UsageLimit)
	subscriptionStore = apiStore

	flagger, err := initFlagStore(ctx, "pending_reconciliations")
	if err != nil {
		logger.Error("Error connecting to the flag store", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return err
	}
	syncFlagStore = flagger
	defer flagger.Close()

	billingApi := models.NewBillingApiClient(models.BillingApiConfig{
		BaseURL: os.Getenv(envBillingApiURL),
		Token:   os.Getenv(envBillingApiToken),
		Timeout: 10 * time.Second,
	})

	reconciliationService = billing_services.NewReconciliationService(
		catalog,
		apiStore,
		models.NewSubscriptionApiSource(billingApi),
		models.NewChargeApiSource(billingApi),
	)
	usageTracker = billing_services.NewUsageTracker(apiStore)

	billingConsumer, err := initConsumerGroup(envBillingKafkaBillingEventsTopic, processBillingEvents)
	if err != nil {
		logger.Error("Error starting the billing event consumer", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return err
	}

	productConsumer, err := initConsumerGroup(envBillingKafkaProductEventsTopic, processProductEvents)
	if err != nil {
		logger.Error("Error starting the product event consumer", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return billingConsumer.Start(groupCtx)
	})
	group.Go(func() error {
		return productConsumer.Start(groupCtx)
	})

	return group.Wait()
}

package main

import (
	"context"
	"errors"

	approvalhandler "deskhive/internal/approvals/handler"
	approvalrepo "deskhive/internal/approvals/repository"
	approvalservice "deskhive/internal/approvals/service"
	availhandler "deskhive/internal/availability/handler"
	availrepo "deskhive/internal/availability/repository"
	availservice "deskhive/internal/availability/service"
	availvalidator "deskhive/internal/availability/validator"
	bookinghandler "deskhive/internal/bookings/handler"
	bookingrepo "deskhive/internal/bookings/repository"
	bookingservice "deskhive/internal/bookings/service"
	bookingvalidator "deskhive/internal/bookings/validator"
	branchhandler "deskhive/internal/branchstate/handler"
	branchservice "deskhive/internal/branchstate/service"
	resourcehandler "deskhive/internal/resources/handler"
	resourcerepo "deskhive/internal/resources/repository"
	resourceservice "deskhive/internal/resources/service"
	"deskhive/pkg/app"
	"deskhive/pkg/client"
	"deskhive/pkg/config"
	dbmongo "deskhive/pkg/db/mongo"
	"deskhive/pkg/kafka"
	kafkaconfig "deskhive/pkg/kafka/config"
	kafkamiddleware "deskhive/pkg/kafka/middleware"
	"deskhive/pkg/lock"
)

const ServiceName = "core"

const branchStateGroupID = "deskhive-branch-state"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting deskhive core service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := client.NewMongo(ctx, cfg.Log, cfg.MongoURI, cfg.MongoDatabaseName, cfg.MongoConnTimeout)
	if err != nil {
		cfg.Log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Close(context.Background())

	lockStore := lock.NewMongoLockStore(mongoClient.Database)
	if err := lockStore.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to ensure lock indexes", "error", err)
	}

	slotStore := availrepo.NewMongoSlotStore(mongoClient.Database, cfg)
	resourceRepository := resourcerepo.NewMongoResourceRepository(mongoClient.Database, cfg)
	bookingRepository := bookingrepo.NewMongoBookingRepository(mongoClient.Database, cfg)
	approvalRepository := approvalrepo.NewMongoApprovalRepository(mongoClient.Database, cfg)
	txManager := dbmongo.NewTransactionManager(mongoClient.Client)

	kafkaCfg := kafkaconfig.Load()
	kafkaMetrics := kafkamiddleware.NewMetrics()

	var bookingPublisher bookingservice.EventPublisher
	var availabilityPublisher availservice.EventPublisher
	var approvalPublisher approvalservice.EventPublisher
	if kafkaCfg.Enabled {
		bookingProducer, err := kafka.NewProducer(kafkaCfg, kafka.TopicBookings, kafka.TopicBookingsDLQ)
		if err != nil {
			cfg.Log.Fatal("Failed to create booking producer", "error", err)
		}
		defer bookingProducer.Close()
		bookingPublisher = bookingProducer
		// Slot block toggles ride the bookings topic: the branch state
		// consumer invalidates on anything carrying a branch_id.
		availabilityPublisher = bookingProducer

		approvalProducer, err := kafka.NewProducer(kafkaCfg, kafka.TopicApprovals, "")
		if err != nil {
			cfg.Log.Fatal("Failed to create approval producer", "error", err)
		}
		defer approvalProducer.Close()
		approvalPublisher = approvalProducer

		if kafkaCfg.EnableMiddleware {
			bookingProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
			bookingProducer.Use(kafkaMetrics.ProducerMiddleware())
			approvalProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
			approvalProducer.Use(kafkaMetrics.ProducerMiddleware())
		}
	} else {
		cfg.Log.Info("Kafka disabled, events will not be published")
	}

	availabilityService := availservice.NewAvailabilityService(
		slotStore,
		availvalidator.NewSlotValidator(cfg.Log),
		availabilityPublisher,
		cfg,
	)
	resourceService := resourceservice.NewResourceService(resourceRepository, cfg)
	bookingService := bookingservice.NewBookingService(
		bookingRepository,
		slotStore,
		lockStore,
		txManager,
		bookingvalidator.NewBookingValidator(cfg.Log),
		bookingPublisher,
		cfg,
	)
	approvalService := approvalservice.NewApprovalService(
		approvalRepository,
		resourceRepository,
		bookingRepository,
		slotStore,
		lockStore,
		txManager,
		approvalPublisher,
		cfg,
	)
	branchStateService := branchservice.NewBranchStateService(slotStore, cfg)

	if kafkaCfg.Enabled {
		consumer, err := kafka.NewConsumer(
			kafkaCfg,
			kafka.TopicBookings,
			branchStateGroupID,
			"",
			branchservice.NewBookingEventHandler(branchStateService, cfg),
		)
		if err != nil {
			cfg.Log.Fatal("Failed to create branch state consumer", "error", err)
		}
		defer consumer.Close()

		if kafkaCfg.EnableMiddleware {
			consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
			consumer.Use(kafkaMetrics.ConsumerMiddleware())
		}

		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				cfg.Log.Error("Branch state consumer stopped", "error", err)
			}
		}()
	}

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, mongoClient.Client,
		resourcehandler.NewResourceHandler(resourceService, cfg.Log),
		availhandler.NewAvailabilityHandler(availabilityService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		approvalhandler.NewApprovalHandler(approvalService, cfg.Log),
		branchhandler.NewBranchStateHandler(branchStateService, cfg.Log),
	)
	serverApp.Run()
}

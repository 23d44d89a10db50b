package main

import (
	"context"
	"fmt"
	"log"
	"time"

	mongoMigration "deskhive/internal/migrations/mongo"
	"deskhive/pkg/client"
	"deskhive/pkg/config"
)

const JobName = "mongo-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.Log.Info("Starting Mongo migration job")

	mongoClient, err := client.NewMongo(ctx, cfg.Log, cfg.MongoURI, cfg.MongoDatabaseName, cfg.MongoConnTimeout)
	if err != nil {
		cfg.Log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Close(context.Background())

	if err := mongoMigration.RunMigration(ctx, mongoClient.Client, cfg.MongoDatabaseName); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println("Migration completed successfully.")
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"review-insights-platform/internal/config"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  file-to-mongo  - Copy file collections and analysis history into MongoDB")
		fmt.Println("  verify         - Compare record counts between the file store and MongoDB")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	fileStore, err := store.NewFileStore(cfg.DataDir, cfg.CollectionCacheSize)
	if err != nil {
		log.Fatalf("Failed to open file store: %v", err)
	}

	// Connect to MongoDB
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	mongoStore := store.NewMongoStore(client, cfg.ReviewsDBName, cfg.DBName)
	ctx := context.Background()

	switch command {
	case "file-to-mongo":
		res, err := store.Copy(ctx, fileStore, mongoStore)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Printf("Migrated %d collections: %d records added, %d already present\n",
			res.Collections, res.RecordsAdded, res.RecordsSkipped)
		fmt.Printf("Analyses: %d added, %d already present\n", res.AnalysesAdded, res.AnalysesSkipped)

	case "verify":
		if err := verifyMigration(ctx, fileStore, mongoStore); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Println("Migration verification completed successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func verifyMigration(ctx context.Context, src, dst store.CollectionStore) error {
	fmt.Println("Verifying migration...")

	infos, err := src.ListCollections(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(infos))
	dstInfos, err := dst.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, info := range dstInfos {
		counts[info.Name] = info.RecordCount
	}

	var missing int
	for _, info := range infos {
		got := counts[info.Name]
		fmt.Printf("  %s: %d file records, %d in MongoDB\n", info.Name, info.RecordCount, got)
		if got < info.RecordCount {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d collections are missing records", missing)
	}
	return nil
}

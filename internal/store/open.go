package store

import (
	"context"
	"time"

	"review-insights-platform/internal/config"
)

// Open returns the store selected by STORAGE_BACKEND and a function that
// releases it.
func Open(cfg *config.Config) (Store, func(), error) {
	if cfg.StorageBackend == config.StorageBackendMongo {
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}
		return NewMongoStore(client, cfg.ReviewsDBName, cfg.DBName), closeFn, nil
	}

	fs, err := NewFileStore(cfg.DataDir, cfg.CollectionCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

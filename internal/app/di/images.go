package di

import (
	"fmt"

	imageadapters "grimoire/internal/feature/images/adapters"
	imgusecase "grimoire/internal/feature/images/usecase"
	"grimoire/internal/platform/config"
	platformhandler "grimoire/internal/platform/http/handler"
)

// ImageStore is the selected cover storage.
type ImageStore struct {
	Store imgusecase.ImageStore
	// ServeDir is the directory the router serves under /images; empty for object storage.
	ServeDir string
	// Check is nil when the store has nothing to probe.
	Check platformhandler.Check
}

// NewImageStore creates the cover storage selected by IMAGE_STORE.
func NewImageStore(cfg *config.Config) (*ImageStore, error) {
	switch cfg.ImageStore {
	case config.ImageStoreMinio:
		store, err := imageadapters.NewMinioStore(imageadapters.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioBaseURL(),
		})
		if err != nil {
			return nil, err
		}
		return &ImageStore{Store: store, Check: store.Ping}, nil
	case config.ImageStoreLocal:
		store, err := imageadapters.NewLocalStore(cfg.ImagesDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return &ImageStore{Store: store, ServeDir: store.Dir()}, nil
	default:
		return nil, fmt.Errorf("unsupported image store %q", cfg.ImageStore)
	}
}

// NewImagePipeline creates the cover ingestion pipeline on top of store.
func NewImagePipeline(cfg *config.Config, store imgusecase.ImageStore) *imgusecase.Pipeline {
	return imgusecase.NewPipeline(store, imgusecase.Options{
		MaxWidth:  cfg.ImageMaxWidth,
		Quality:   cfg.ImageQuality,
		MaxPixels: cfg.ImageMaxPixels,
	})
}

package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/cleanflow/api/internal/client"
	"github.com/cleanflow/api/internal/model"
)

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// UploadService stores photo bytes in object storage and attaches the
// resulting URL to a task
type UploadService struct {
	r2Client    client.StorageClient
	coordinator *Coordinator
}

// NewUploadService creates an upload service. A nil storage client yields
// mock CDN URLs for development.
func NewUploadService(r2Client client.StorageClient, coordinator *Coordinator) *UploadService {
	return &UploadService{
		r2Client:    r2Client,
		coordinator: coordinator,
	}
}

// IsAllowedContentType reports whether a photo of this type can be uploaded
func IsAllowedContentType(contentType string) bool {
	_, ok := photoExtensions[strings.ToLower(contentType)]
	return ok
}

// UploadPhoto stores the file and appends it to the task's photos
func (s *UploadService) UploadPhoto(ctx context.Context, ref TaskRef, req *model.AddPhotoRequest, file io.Reader, contentType, actorID string) (*model.PhotoView, error) {
	ext, ok := photoExtensions[strings.ToLower(contentType)]
	if !ok {
		return nil, model.Validationf("unsupported content type %q", contentType)
	}
	key := path.Join("photos", ref.PropertyID, fmt.Sprintf("%d-%d", ref.RoomIndex, ref.TaskIndex), uuid.New().String()+ext)

	if s.r2Client == nil {
		req.URL = fmt.Sprintf("https://cdn.cleanflow.app/%s", key)
		return s.coordinator.AppendPhoto(ctx, ref, req, actorID)
	}

	url, err := s.r2Client.Upload(ctx, key, file, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}
	req.URL = url

	view, err := s.coordinator.AppendPhoto(ctx, ref, req, actorID)
	if err != nil {
		if delErr := s.r2Client.Delete(ctx, key); delErr != nil {
			log.Printf("Failed to remove orphaned photo %s: %v", key, delErr)
		}
		return nil, err
	}
	return view, nil
}

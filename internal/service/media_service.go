package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/storage"
	"github.com/noteduco342/courtside-chat/internal/validation"
	"github.com/rs/zerolog"
)

var ErrStorageNotConfigured = errors.New("storage not configured")

// ObjectStore is the object storage the media service writes attachments to.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectStat, error)
}

type UploadedImage struct {
	Key         string `json:"key"`
	ImageURL    string `json:"image_url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// MediaService stores chat image attachments under a per-room prefix so that
// reads can be gated on room membership.
type MediaService struct {
	objects ObjectStore
	gate    accessGate
	opts    storage.ImageProcessOptions
	log     zerolog.Logger
}

// NewMediaService accepts a nil store; every call then fails with
// ErrStorageNotConfigured.
func NewMediaService(stores Stores, objects ObjectStore, opts storage.ImageProcessOptions, log zerolog.Logger) *MediaService {
	return &MediaService{
		objects: objects,
		gate:    accessGate{members: stores.Memberships, log: log},
		opts:    opts,
		log:     log,
	}
}

// UploadChatImage normalises an uploaded image to JPEG and stores it for the
// room. The returned ImageURL is accepted by message sends.
func (s *MediaService) UploadChatImage(ctx context.Context, actor, roomID uuid.UUID, file io.Reader) (*UploadedImage, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, ErrStorageNotConfigured
	}

	jpegBytes, contentType, size, err := storage.ProcessChatImage(file, s.opts)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupported), errors.Is(err, storage.ErrInvalidImage):
			return nil, invalid("file", err.Error())
		default:
			s.log.Debug().Err(err).Msg("reading upload failed")
			return nil, invalid("file", "could not read upload")
		}
	}

	key := storage.ChatImageKey(roomID, uuid.New())
	if _, err := s.objects.PutObject(ctx, key, bytes.NewReader(jpegBytes), size, contentType); err != nil {
		return nil, storageFailure(s.log, "media.put", err)
	}
	return &UploadedImage{
		Key:         key,
		ImageURL:    validation.MediaPathPrefix + key,
		ContentType: contentType,
		SizeBytes:   size,
	}, nil
}

// OpenChatImage opens a stored attachment for a member of the room encoded in
// its key. The caller closes the reader.
func (s *MediaService) OpenChatImage(ctx context.Context, actor uuid.UUID, rawKey string) (io.ReadCloser, storage.ObjectStat, error) {
	if actor == uuid.Nil {
		return nil, storage.ObjectStat{}, ErrNotAuthenticated
	}
	key, err := storage.SafeJoinMediaPath("", rawKey)
	if err != nil {
		return nil, storage.ObjectStat{}, ErrNotFound
	}
	roomID, ok := chatKeyRoom(key)
	if !ok {
		return nil, storage.ObjectStat{}, ErrNotFound
	}
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, storage.ObjectStat{}, err
	}
	if s.objects == nil {
		return nil, storage.ObjectStat{}, ErrStorageNotConfigured
	}

	obj, st, err := s.objects.GetObject(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, storage.ObjectStat{}, ErrNotFound
		}
		return nil, storage.ObjectStat{}, storageFailure(s.log, "media.get", err)
	}
	return obj, st, nil
}

// chatKeyRoom extracts the room id from chat/<room>/<file>.
func chatKeyRoom(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != storage.ChatPrefix || parts[2] == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Package media validates uploads and signs upload urls.
package media

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/models"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"github.com/router-for-me/marketplace-core/internal/validation"
)

// Upload limits.
const (
	MaxImageBytes = 10 * 1024 * 1024
	MaxVideoBytes = 50 * 1024 * 1024
)

// DefaultURLExpiry is the lifetime of a signed upload url.
const DefaultURLExpiry = 10 * time.Minute

var (
	imageTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true}
	videoTypes = map[string]bool{"video/mp4": true, "video/quicktime": true}

	pathPattern = regexp.MustCompile(`^[a-zA-Z0-9/_\-.]+$`)
)

// SignInput describes a file the client wants to upload.
type SignInput struct {
	Path        string           `json:"path" validate:"required,max=512"`
	MediaType   models.MediaType `json:"mediaType" validate:"required,oneof=IMAGE VIDEO"`
	MimeType    string           `json:"mimeType" validate:"required"`
	SizeBytes   int64            `json:"sizeBytes" validate:"required,gte=1"`
	DurationSec *int             `json:"durationSec" validate:"omitempty,gte=0"`
}

// Validate checks the MIME type, size and duration of an upload.
func Validate(in SignInput) error {
	mime := strings.ToLower(strings.TrimSpace(in.MimeType))
	switch in.MediaType {
	case models.MediaTypeImage:
		if !imageTypes[mime] {
			return apperr.UnprocessableContent("invalid image MIME type")
		}
		if in.SizeBytes > MaxImageBytes {
			return apperr.UnprocessableContent("image size exceeds 10MB")
		}
	case models.MediaTypeVideo:
		if !videoTypes[mime] {
			return apperr.UnprocessableContent("invalid video MIME type")
		}
		if in.SizeBytes > MaxVideoBytes {
			return apperr.UnprocessableContent("video size exceeds 50MB")
		}
		if in.DurationSec != nil && *in.DurationSec > internalsettings.MaxVideoDurationSeconds {
			return apperr.UnprocessableContent(fmt.Sprintf("video duration must be %d seconds or less", internalsettings.MaxVideoDurationSeconds))
		}
	default:
		return apperr.UnprocessableContent("unsupported media type")
	}
	return nil
}

// Signer presigns a PUT for key.
type Signer interface {
	SignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
}

// Signed is a ready-to-use upload target.
type Signed struct {
	UploadURL string    `json:"uploadUrl"`
	FileURL   string    `json:"fileUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service signs upload urls.
type Service struct {
	signer     Signer
	publicBase string
	expiry     time.Duration
	nowFn      func() time.Time
}

// NewService picks the S3 signer when a bucket is configured, otherwise the HMAC signer.
func NewService(cfg config.MediaConfig) (*Service, error) {
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	var signer Signer
	if strings.TrimSpace(cfg.Bucket) != "" {
		s3Signer, errS3 := NewS3Signer(cfg)
		if errS3 != nil {
			return nil, errS3
		}
		signer = s3Signer
	} else {
		hmacSigner, errHMAC := NewHMACSigner(cfg.SigningSecret, cfg.PublicBaseURL)
		if errHMAC != nil {
			return nil, errHMAC
		}
		signer = hmacSigner
	}
	return NewServiceWithSigner(signer, cfg.PublicBaseURL, expiry), nil
}

// NewServiceWithSigner constructs a Service around signer.
func NewServiceWithSigner(signer Signer, publicBase string, expiry time.Duration) *Service {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	return &Service{
		signer:     signer,
		publicBase: strings.TrimRight(publicBase, "/"),
		expiry:     expiry,
		nowFn:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// Sign validates the upload and returns a presigned PUT under the user's prefix.
func (s *Service) Sign(ctx context.Context, userID uint64, in SignInput) (*Signed, error) {
	in.Path = strings.Trim(strings.TrimSpace(in.Path), "/")
	in.MediaType = models.MediaType(strings.ToUpper(strings.TrimSpace(string(in.MediaType))))
	if errValidate := validation.Struct(in); errValidate != nil {
		return nil, errValidate
	}
	if !pathPattern.MatchString(in.Path) || strings.Contains(in.Path, "..") {
		return nil, apperr.ValidationFields("invalid fields: path", map[string]string{"path": "may contain only letters, digits, '/', '_', '-' and '.'"})
	}
	if errMedia := Validate(in); errMedia != nil {
		return nil, errMedia
	}

	key := fmt.Sprintf("uploads/%d/%s", userID, in.Path)
	uploadURL, errSign := s.signer.SignPut(ctx, key, strings.ToLower(in.MimeType), s.expiry)
	if errSign != nil {
		return nil, fmt.Errorf("media: sign upload: %w", errSign)
	}
	signed := &Signed{
		UploadURL: uploadURL,
		Key:       key,
		ExpiresAt: s.nowFn().UTC().Add(s.expiry),
	}
	if s.publicBase != "" {
		signed.FileURL = s.publicBase + "/" + key
	}
	return signed, nil
}

// Verify checks an HMAC-signed url. It reports false when the service signs through S3.
func (s *Service) Verify(key string, expires int64, signature string) (bool, string) {
	hmacSigner, ok := s.signer.(*HMACSigner)
	if !ok {
		return false, "unsupported"
	}
	return hmacSigner.Verify(key, expires, signature)
}

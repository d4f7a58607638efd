package media

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/models"
)

func intPtr(v int) *int { return &v }

func TestValidateLimits(t *testing.T) {
	cases := []struct {
		name string
		in   SignInput
		ok   bool
	}{
		{"jpeg", SignInput{MediaType: models.MediaTypeImage, MimeType: "image/jpeg", SizeBytes: 1024}, true},
		{"gif rejected", SignInput{MediaType: models.MediaTypeImage, MimeType: "image/gif", SizeBytes: 1024}, false},
		{"large image", SignInput{MediaType: models.MediaTypeImage, MimeType: "image/png", SizeBytes: MaxImageBytes + 1}, false},
		{"short video", SignInput{MediaType: models.MediaTypeVideo, MimeType: "video/mp4", SizeBytes: 1024, DurationSec: intPtr(30)}, true},
		{"long video", SignInput{MediaType: models.MediaTypeVideo, MimeType: "video/mp4", SizeBytes: 1024, DurationSec: intPtr(31)}, false},
		{"large video", SignInput{MediaType: models.MediaTypeVideo, MimeType: "video/quicktime", SizeBytes: MaxVideoBytes + 1}, false},
		{"image mime on video", SignInput{MediaType: models.MediaTypeVideo, MimeType: "image/png", SizeBytes: 1024}, false},
	}
	for _, tc := range cases {
		err := Validate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && apperr.KindOf(err) != apperr.KindUnprocessableContent {
			t.Fatalf("%s: expected UnprocessableContent, got %v", tc.name, err)
		}
	}
}

func TestHMACSignAndVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	signer, errSigner := NewHMACSigner("media-secret", "https://cdn.example.pk")
	if errSigner != nil {
		t.Fatalf("new signer: %v", errSigner)
	}
	signer.nowFn = func() time.Time { return now }
	svc := NewServiceWithSigner(signer, "https://cdn.example.pk", 10*time.Minute)
	svc.SetClock(func() time.Time { return now })

	signed, errSign := svc.Sign(context.Background(), 42, SignInput{
		Path:      "listing/front.jpg",
		MediaType: "image",
		MimeType:  "image/jpeg",
		SizeBytes: 2048,
	})
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if signed.Key != "uploads/42/listing/front.jpg" || signed.FileURL != "https://cdn.example.pk/uploads/42/listing/front.jpg" {
		t.Fatalf("unexpected signed target %+v", signed)
	}
	parsed, errParse := url.Parse(signed.UploadURL)
	if errParse != nil {
		t.Fatalf("parse url: %v", errParse)
	}
	expires, _ := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	if expires != now.Add(10*time.Minute).Unix() {
		t.Fatalf("unexpected expiry %d", expires)
	}
	signature := parsed.Query().Get("signature")
	if ok, reason := svc.Verify(signed.Key, expires, signature); !ok {
		t.Fatalf("expected valid signature, got %s", reason)
	}
	if ok, reason := svc.Verify("uploads/43/listing/front.jpg", expires, signature); ok || reason != "invalid_signature" {
		t.Fatalf("expected invalid signature for other key, got %v %s", ok, reason)
	}
	now = now.Add(11 * time.Minute)
	if ok, reason := svc.Verify(signed.Key, expires, signature); ok || reason != "expired" {
		t.Fatalf("expected expired, got %v %s", ok, reason)
	}
}

func TestSignRejectsBadInput(t *testing.T) {
	signer, _ := NewHMACSigner("media-secret", "")
	svc := NewServiceWithSigner(signer, "", 0)
	ctx := context.Background()

	_, errPath := svc.Sign(ctx, 1, SignInput{Path: "../etc/passwd", MediaType: models.MediaTypeImage, MimeType: "image/png", SizeBytes: 10})
	if apperr.KindOf(errPath) != apperr.KindValidation {
		t.Fatalf("expected Validation for traversal path, got %v", errPath)
	}
	_, errVideo := svc.Sign(ctx, 1, SignInput{Path: "clip.mp4", MediaType: models.MediaTypeVideo, MimeType: "video/mp4", SizeBytes: 10, DurationSec: intPtr(45)})
	if apperr.KindOf(errVideo) != apperr.KindUnprocessableContent {
		t.Fatalf("expected UnprocessableContent for long video, got %v", errVideo)
	}
}

func TestS3SignerPresignsPut(t *testing.T) {
	svc, errNew := NewService(config.MediaConfig{
		Bucket:          "marketplace",
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		Region:          "auto",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		PublicBaseURL:   "https://media.example.pk",
	})
	if errNew != nil {
		t.Fatalf("new service: %v", errNew)
	}
	signed, errSign := svc.Sign(context.Background(), 7, SignInput{
		Path:      "phone.png",
		MediaType: models.MediaTypeImage,
		MimeType:  "image/png",
		SizeBytes: 4096,
	})
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if !strings.Contains(signed.UploadURL, "/marketplace/uploads/7/phone.png") || !strings.Contains(signed.UploadURL, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url %s", signed.UploadURL)
	}
	if ok, _ := svc.Verify(signed.Key, 0, ""); ok {
		t.Fatalf("s3 urls are not verified locally")
	}

	if _, errMissing := NewService(config.MediaConfig{Bucket: "marketplace"}); errMissing == nil {
		t.Fatalf("expected error without credentials")
	}
}

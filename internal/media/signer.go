package media

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/router-for-me/marketplace-core/internal/config"
)

// S3Signer presigns PUTs against an S3-compatible bucket such as R2.
type S3Signer struct {
	bucket    string
	presigner *s3.PresignClient
}

// NewS3Signer builds a presigner from static credentials.
func NewS3Signer(cfg config.MediaConfig) (*S3Signer, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("media: s3 credentials are required when a bucket is configured")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Signer{bucket: cfg.Bucket, presigner: s3.NewPresignClient(s3.New(opts))}, nil
}

// SignPut implements Signer.
func (s *S3Signer) SignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	req, errPresign := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if errPresign != nil {
		return "", errPresign
	}
	return req.URL, nil
}

// HMACSigner produces self-verifiable upload urls for local storage.
type HMACSigner struct {
	secret  []byte
	baseURL string
	nowFn   func() time.Time
}

// NewHMACSigner constructs an HMACSigner.
func NewHMACSigner(secret, baseURL string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.New("media: signing secret is required without a bucket")
	}
	if baseURL == "" {
		baseURL = "http://localhost:3001/media"
	}
	return &HMACSigner{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/"), nowFn: time.Now}, nil
}

// SignPut implements Signer.
func (h *HMACSigner) SignPut(_ context.Context, key, _ string, expiry time.Duration) (string, error) {
	expires := h.nowFn().Add(expiry).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", h.sign(key, expires))
	return fmt.Sprintf("%s/%s?%s", h.baseURL, key, q.Encode()), nil
}

// Verify reports whether signature is valid for key and still unexpired.
func (h *HMACSigner) Verify(key string, expires int64, signature string) (bool, string) {
	if expires < h.nowFn().Unix() {
		return false, "expired"
	}
	expected, errExpected := hex.DecodeString(h.sign(key, expires))
	received, errReceived := hex.DecodeString(signature)
	if errExpected != nil || errReceived != nil || !hmac.Equal(expected, received) {
		return false, "invalid_signature"
	}
	return true, ""
}

func (h *HMACSigner) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(key + ":" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

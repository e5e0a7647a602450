package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"foodgram-backend/internal/utils"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var AllowImage = []string{"image/jpeg", "image/jpg", "image/png"}

var (
	ErrInvalidImagePayload = errors.New("invalid base64 image payload")
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
)

type (
	// AwsS3 stores encoded image payloads and hands back stable public
	// links; callers keep only the link.
	AwsS3 interface {
		UploadBase64(fileName, data, folder string, allowedTypes ...string) (string, error)
		UpdateBase64(objectKey, data string, allowedTypes ...string) (string, error)
		DeleteFile(objectKey string) error
		GetObjectKeyFromLink(link string) string
		GetPublicLinkKey(objectKey string) string
	}

	awsS3 struct {
		client *s3.Client
		bucket string
		region string
	}
)

func NewAwsS3() AwsS3 {
	region := utils.GetConfig("AWS_S3_REGION")
	cfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			utils.GetConfig("AWS_ACCESS_KEY"),
			utils.GetConfig("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		log.Fatalf("error loading AWS config: %v", err)
	}

	return &awsS3{
		client: s3.NewFromConfig(cfg),
		bucket: utils.GetConfig("AWS_S3_BUCKET"),
		region: region,
	}
}

// decodeBase64Image splits a `data:<type>;base64,<payload>` string into
// its content type and raw bytes.
func decodeBase64Image(data string, allowedTypes []string) (string, []byte, error) {
	if !strings.HasPrefix(data, "data:") {
		return "", nil, ErrInvalidImagePayload
	}

	parts := strings.SplitN(strings.TrimPrefix(data, "data:"), ";base64,", 2)
	if len(parts) != 2 {
		return "", nil, ErrInvalidImagePayload
	}
	contentType := parts[0]

	allowed := len(allowedTypes) == 0
	for _, t := range allowedTypes {
		if t == contentType {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", nil, ErrContentTypeNotAllowed
	}

	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, ErrInvalidImagePayload
	}
	return contentType, raw, nil
}

func (a *awsS3) putObject(objectKey, contentType string, raw []byte) error {
	_, err := a.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String(contentType),
	})
	return err
}

func (a *awsS3) UploadBase64(fileName, data, folder string, allowedTypes ...string) (string, error) {
	contentType, raw, err := decodeBase64Image(data, allowedTypes)
	if err != nil {
		return "", err
	}

	ext := strings.TrimPrefix(contentType, "image/")
	objectKey := fmt.Sprintf("%s/%s.%s", folder, fileName, ext)
	if err := a.putObject(objectKey, contentType, raw); err != nil {
		return "", err
	}
	return objectKey, nil
}

func (a *awsS3) UpdateBase64(objectKey, data string, allowedTypes ...string) (string, error) {
	contentType, raw, err := decodeBase64Image(data, allowedTypes)
	if err != nil {
		return "", err
	}
	if err := a.putObject(objectKey, contentType, raw); err != nil {
		return "", err
	}
	return objectKey, nil
}

func (a *awsS3) DeleteFile(objectKey string) error {
	_, err := a.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

func (a *awsS3) GetObjectKeyFromLink(link string) string {
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", a.bucket, a.region)
	if !strings.HasPrefix(link, prefix) {
		return ""
	}
	return strings.TrimPrefix(link, prefix)
}

func (a *awsS3) GetPublicLinkKey(objectKey string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, objectKey)
}

package filestore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/relabs-tech/netinventory/core/logger"
)

// S3 is the implementation of the Driver for AWS S3
type S3 struct {
	config      aws.Config
	bucket      string
	baseKeyName string
}

// presignExpiry is how long presigned GET URLs remain valid. The browser
// re-requests the topology URL on every page load, so a short expiry is
// enough.
const presignExpiry = 15 * time.Minute

// NewS3 returns a new S3 driver
func NewS3(s3Config S3Configuration) (*S3, error) {
	if s3Config.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(s3Config.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3Config.AccessID, s3Config.AccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("filestore S3 enabled")
	return &S3{cfg, s3Config.AWSBucketName, s3Config.KeyPrefix}, nil
}

// Put uploads data into the key object, overwriting any previous content
func (s S3) Put(key string, contentType string, data []byte) error {
	client := s3.NewFromConfig(s.config)

	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.baseKeyName + key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file, %v", err)
	}
	return nil
}

// Delete deletes the key object
func (s S3) Delete(key string) error {
	logger.Default().Infoln("Deleting ", s.baseKeyName+key)
	client := s3.NewFromConfig(s.config)

	_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.baseKeyName + key),
	})
	if err != nil {
		logger.Default().Error("Could not delete ", s.baseKeyName+key)
		return err
	}
	return nil
}

// URL returns a presigned GET URL for the key. Every call produces a
// fresh URL, which also takes care of browser cache busting.
func (s S3) URL(key string) (string, error) {
	client := s3.NewPresignClient(s3.NewFromConfig(s.config))

	resp, err := client.PresignGetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.baseKeyName + key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

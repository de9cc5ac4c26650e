package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/types"
)

// S3Service stores encrypted attachment blobs in object storage. Objects are
// ciphertext only; the content key never leaves the submission pipeline.
type S3Service struct {
	env *types.Environment
}

func NewS3Service(env *types.Environment) *S3Service {
	return &S3Service{
		env: env,
	}
}

// upload an encrypted attachment blob
func (s3s *S3Service) UploadAttachment(bucket, objectKey string, content []byte) error {
	if len(content) == 0 {
		return types.ErrBadRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ioReader := bytes.NewReader(content)
	_, uErr := s3s.env.S3Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
		Body:   ioReader,
	})
	if uErr != nil {
		global.Logger.Log(uErr.Error(), "failed to upload attachment", objectKey)
		return uErr
	}
	return nil
}

// DownloadAttachment returns the encrypted blob at objectKey
func (s3s *S3Service) DownloadAttachment(bucket, objectKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := s3s.env.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *s3Types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeleteAttachment removes an attachment object after its submission was
// purged
func (s3s *S3Service) DeleteAttachment(bucket, objectKey string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s3s.env.S3Client.DeleteObject(ctx, input)
	if err != nil {
		var noKey *s3Types.NoSuchKey
		var apiErr *smithy.GenericAPIError
		if errors.As(err, &noKey) {
			global.Logger.Log("warning", "object does not exist", "objectKey", objectKey)
			return types.ErrNotFound
		} else if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "AccessDenied":
				global.Logger.Log("warning", "access denied", "objectKey", objectKey)
				return types.ErrNotAuthorized
			}
			global.Logger.Log("error", "error deleting object", "error", err)
			return err
		}
	}
	return nil
}

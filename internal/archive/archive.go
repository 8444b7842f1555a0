// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package archive copies signed documents of completed envelopes into an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shieldline/esign/internal/config"
	"github.com/shieldline/esign/internal/esign"
)

// KeyPrefix is the top-level folder for archived documents.
const KeyPrefix = "signed"

// DocumentSource downloads the signed document of an envelope.
type DocumentSource interface {
	Document(ctx context.Context, envelopeID string) (*esign.SignedDocument, error)
}

// ObjectPutter is the subset of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver stores signed documents under signed/<envelopeId>/<fileName>.
type Archiver struct {
	docs   DocumentSource
	s3     ObjectPutter
	bucket string
}

// NewArchiver creates an archiver writing to bucket.
func NewArchiver(docs DocumentSource, s3Client ObjectPutter, bucket string) *Archiver {
	return &Archiver{docs: docs, s3: s3Client, bucket: bucket}
}

// NewS3Client builds an S3 client from storage configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ObjectKey is the bucket key for an envelope's signed document. Names that
// would leave the envelope folder fall back to the default document name.
func ObjectKey(envelopeID, fileName string) string {
	base := path.Base(fileName)
	switch base {
	case ".", "..", "/":
		base = esign.DocumentFileName(envelopeID, "")
	}
	return path.Join(KeyPrefix, envelopeID, base)
}

// Archive downloads the signed document and uploads it, returning the
// object key.
func (a *Archiver) Archive(ctx context.Context, envelopeID string) (string, error) {
	doc, err := a.docs.Document(ctx, envelopeID)
	if err != nil {
		return "", err
	}

	key := ObjectKey(envelopeID, doc.FileName)
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Content),
		ContentLength: aws.Int64(int64(len(doc.Content))),
		ContentType:   aws.String("application/pdf"),
		Metadata:      map[string]string{"envelope-id": envelopeID},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	slog.Info("signed document archived",
		"envelope_id", envelopeID,
		"bucket", a.bucket,
		"key", key,
		"bytes", len(doc.Content),
	)
	return key, nil
}

// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Publisher stores assets in an S3-compatible bucket.
type S3Publisher struct {
	Client   *s3.Client
	Presign  *s3.PresignClient
	Bucket   string
	Prefix   string
	Public   bool
	Endpoint string
	Region   string
	URLTTL   time.Duration
	Timeout  time.Duration
}

// NewS3Publisher loads the default AWS credential chain. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewS3Publisher(ctx context.Context, config *Config) (*S3Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Storage.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := config.Storage.Endpoint
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Publisher{
		Client:   client,
		Presign:  s3.NewPresignClient(client),
		Bucket:   config.Storage.Bucket,
		Prefix:   config.Storage.Prefix,
		Public:   config.Storage.Public,
		Endpoint: endpoint,
		Region:   config.Storage.Region,
		URLTTL:   config.SignedURLTTL(),
		Timeout:  config.UploadTimeout(),
	}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	key := ObjectKey(p.Prefix, objectName)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(VideoContentType),
	}
	if p.Public {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}
	if _, err := p.Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.Bucket, key, err)
	}
	slog.InfoContext(ctx, "uploaded render", "bucket", p.Bucket, "object", key, "provider", StorageS3)

	if p.Public {
		return PublicURL(p.publicBase(), key), nil
	}
	req, err := p.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.URLTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", p.Bucket, key, err)
	}
	return req.URL, nil
}

func (p *S3Publisher) publicBase() string {
	if p.Endpoint != "" {
		return strings.TrimRight(p.Endpoint, "/") + "/" + p.Bucket
	}
	region := p.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", p.Bucket, region)
}

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
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

const VideoContentType = "video/mp4"

// Publisher uploads a finished asset and returns the address callers use to
// fetch it. Implementations make exactly one attempt.
type Publisher interface {
	Publish(ctx context.Context, localPath, objectName string) (string, error)
}

// GCSPublisher stores assets in a Cloud Storage bucket. Public buckets get a
// public-read ACL and a plain URL; otherwise a V4 signed GET URL is returned.
type GCSPublisher struct {
	Client      *storage.Client
	Bucket      string
	Prefix      string
	Public      bool
	URLTTL      time.Duration
	Timeout     time.Duration
	SignerEmail string
	IAMClient   *credentials.IamCredentialsClient
}

func NewGCSPublisher(client *storage.Client, iam *credentials.IamCredentialsClient, config *Config) *GCSPublisher {
	return &GCSPublisher{
		Client:      client,
		Bucket:      config.Storage.Bucket,
		Prefix:      config.Storage.Prefix,
		Public:      config.Storage.Public,
		URLTTL:      config.SignedURLTTL(),
		Timeout:     config.UploadTimeout(),
		SignerEmail: config.Application.SignerServiceAccountEmail,
		IAMClient:   iam,
	}
}

func (p *GCSPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	key := ObjectKey(p.Prefix, objectName)

	dat, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer dat.Close()

	obj := p.Client.Bucket(p.Bucket).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = VideoContentType
	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to copy to GCS after %d bytes: %w", written, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gs://%s/%s: %w", p.Bucket, key, err)
	}
	slog.InfoContext(ctx, "uploaded render", "bucket", p.Bucket, "object", key)

	if p.Public {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			return "", fmt.Errorf("failed to make gs://%s/%s public: %w", p.Bucket, key, err)
		}
		return PublicURL("https://storage.googleapis.com/"+p.Bucket, key), nil
	}
	return p.signedURL(ctx, key)
}

func (p *GCSPublisher) signedURL(ctx context.Context, key string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(p.URLTTL),
	}
	if p.SignerEmail != "" && p.IAMClient != nil {
		opts.GoogleAccessID = p.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", p.SignerEmail),
				Payload: b,
			}
			resp, err := p.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := p.Client.Bucket(p.Bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", p.Bucket, key, err)
	}
	return u, nil
}

// ObjectKey joins the configured prefix and the object name.
func ObjectKey(prefix, name string) string {
	return prefix + strings.TrimLeft(name, "/")
}

// PublicURL appends key to base, escaping each path segment.
func PublicURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// GCSObjectOpener returns a function that streams gs:// objects, for use as
// an asset cache source.
func GCSObjectOpener(client *storage.Client) func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS reader for gs://%s/%s: %w", bucket, object, err)
		}
		return reader, nil
	}
}

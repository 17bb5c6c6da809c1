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

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/bigquery"
	iamcredentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ServiceClients is the container for every external client the server
// uses. Clients are only created when the configuration needs them, so a
// local run with storage disabled and silent narration needs no credentials.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *iamcredentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener
	SpeechModel     *QuotaAwareSpeechModel
	Publisher       Publisher
	Notifier        NoticeSender
}

// Close releases every client that was opened.
func (c *ServiceClients) Close() {
	if n, ok := c.Notifier.(*TopicNotifier); ok {
		n.Stop()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// ClientOptions turns the configured service account key, if any, into
// client options shared by every Google client.
func ClientOptions(ctx context.Context, config *Config) ([]option.ClientOption, error) {
	if config.Application.CredentialsJSON == "" {
		return nil, nil
	}
	data := []byte(config.Application.CredentialsJSON)
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account JSON: %w", err)
	}
	if config.Application.GoogleProjectId == "" {
		config.Application.GoogleProjectId = creds.ProjectID
	}
	return []option.ClientOption{option.WithCredentialsJSON(data)}, nil
}

func (c *ServiceClients) genAIConfig(config *Config) (*genai.ClientConfig, error) {
	cc := &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
	if config.Application.CredentialsJSON != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{cloudPlatformScope},
			CredentialsJSON: []byte(config.Application.CredentialsJSON),
		})
		if err != nil {
			return nil, err
		}
		cc.Credentials = creds
	}
	return cc, nil
}

// NewCloudServiceClients opens the clients config asks for.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	opts, err := ClientOptions(ctx, config)
	if err != nil {
		return nil, err
	}
	out := &ServiceClients{PubSubListeners: make(map[string]*PubSubListener)}
	defer func() {
		if err != nil {
			out.Close()
		}
	}()

	switch {
	case config.Storage.Provider == StorageGCS && config.Storage.Bucket != "":
		if out.StorageClient, err = storage.NewClient(ctx, opts...); err != nil {
			return nil, err
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if out.IAMClient, err = iamcredentials.NewIamCredentialsClient(ctx, opts...); err != nil {
				return nil, err
			}
		}
		out.Publisher = NewGCSPublisher(out.StorageClient, out.IAMClient, config)
	case config.Storage.Provider == StorageS3 && config.Storage.Bucket != "":
		if out.Publisher, err = NewS3Publisher(ctx, config); err != nil {
			return nil, err
		}
	default:
		slog.WarnContext(ctx, "object storage not configured, renders can only be returned inline", "provider", config.Storage.Provider)
	}

	if out.StorageClient == nil && config.Assets.FromBucket() {
		if out.StorageClient, err = storage.NewClient(ctx, opts...); err != nil {
			return nil, err
		}
	}

	if config.ListensForRequests() || config.Notifications.Topic != "" {
		if out.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId, opts...); err != nil {
			return nil, err
		}
		if config.Notifications.Topic != "" {
			out.Notifier = NewTopicNotifier(out.PubsubClient, config.Notifications.Topic)
		}
		for subKey, values := range config.TopicSubscriptions {
			if values.Name == "" {
				continue
			}
			listener, err := NewPubSubListener(out.PubsubClient, values.Name, nil)
			if err != nil {
				return nil, err
			}
			out.PubSubListeners[subKey] = listener
		}
	}

	if config.BigQueryDataSource.DatasetName != "" {
		if out.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId, opts...); err != nil {
			return nil, err
		}
	}

	if config.Narration.Provider == NarrationGemini {
		cc, err := out.genAIConfig(config)
		if err != nil {
			return nil, err
		}
		if out.GenAIClient, err = genai.NewClient(ctx, cc); err != nil {
			return nil, fmt.Errorf("error creating genai client: %w", err)
		}
		out.SpeechModel = NewQuotaAwareSpeechModel(nil, config.Narration.Model, out.GenAIClient.Models,
			config.Narration.RateLimit, config.Narration.MaxRetries)
	}

	return out, nil
}

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

	"cloud.google.com/go/pubsub"
)

// NoticeSender delivers a small message to downstream subscribers.
type NoticeSender interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) error
}

// TopicNotifier sends notices to a Pub/Sub topic and waits for the server
// to acknowledge each one.
type TopicNotifier struct {
	Topic *pubsub.Topic
}

func NewTopicNotifier(client *pubsub.Client, topicID string) *TopicNotifier {
	return &TopicNotifier{Topic: client.Topic(topicID)}
}

func (n *TopicNotifier) Send(ctx context.Context, data []byte, attributes map[string]string) error {
	_, err := n.Topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
	return err
}

// Stop flushes pending messages.
func (n *TopicNotifier) Stop() {
	n.Topic.Stop()
}

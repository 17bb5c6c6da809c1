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
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-render/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-render/internal/core/model"
)

// PubSubListener feeds every message of a subscription into a command as a
// render request.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
	timeout      time.Duration
}

func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)

	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand sets the command once; later calls are ignored.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetTimeout bounds the handling of one message.
func (m *PubSubListener) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// ShouldAck decides the fate of a handled message. Successes and requests
// that can never succeed (input errors) are acknowledged; anything else is
// left for redelivery.
func ShouldAck(errs map[string]error) bool {
	for _, err := range errs {
		if model.KindOf(err) != model.KindInput {
			return false
		}
	}
	return true
}

// Listen starts receiving in the background until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.InfoContext(ctx, "listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("message_id", msg.ID), attribute.Int("size", len(msg.Data)))

			if m.timeout > 0 {
				var cancel context.CancelFunc
				spanCtx, cancel = context.WithTimeout(spanCtx, m.timeout)
				defer cancel()
			}

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, msg.Data)
			defer chainCtx.Close()

			m.command.Execute(chainCtx)

			errs := chainCtx.GetErrors()
			for name, e := range errs {
				slog.ErrorContext(spanCtx, "error executing chain", "command", name, "error", e,
					"error_kind", model.KindOf(e), "diagnostic", model.DiagnosticOf(e))
			}
			if len(errs) == 0 {
				span.SetStatus(codes.Ok, "success")
			} else {
				span.SetStatus(codes.Error, "failed")
			}
			if ShouldAck(errs) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		})

		if err != nil {
			slog.ErrorContext(ctx, "error receiving data", "error", err)
		}
	}()
}

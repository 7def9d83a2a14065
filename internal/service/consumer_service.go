package service

import (
	"context"
	"encoding/json"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// JobDispatcher starts a pipeline without waiting for it.
type JobDispatcher interface {
	Dispatch(job *dto.PipelineJobMessage) bool
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	dispatcher JobDispatcher
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	dispatcher JobDispatcher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// Consume must be running before the first job is published.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

// processMessage acks as soon as the job is handed off; the pipeline records its own failures.
func (cs *consumerService) processMessage(msg *message.Message) {
	var job dto.PipelineJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal job", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	if !cs.dispatcher.Dispatch(&job) {
		cs.logger.Warn("CONSUMER", "Job not dispatched", map[string]interface{}{"item_id": job.ItemId.String()})
	}
	msg.Ack()
}

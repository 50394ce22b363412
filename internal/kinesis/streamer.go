package kinesis

import (
	"context"
	"encoding/json"
	"log/slog"

	"dispatch-service/internal/events"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// Streamer publishes engine events to a Kinesis stream, partitioned by job
// so a job's events stay ordered.
type Streamer struct {
	client     *kinesis.Client
	streamName string
}

func NewStreamer(client *kinesis.Client, streamName string) *Streamer {
	return &Streamer{
		client:     client,
		streamName: streamName,
	}
}

func (s *Streamer) Publish(ctx context.Context, event events.Event) {
	if s.client == nil {
		return // Kinesis not enabled
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "job_id", event.JobID, "error", err)
		return
	}

	_, err = s.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   &s.streamName,
		Data:         data,
		PartitionKey: &event.JobID,
	})

	if err != nil {
		slog.Error("Failed to stream event", "job_id", event.JobID, "type", event.Type, "error", err)
	} else {
		slog.Debug("Streamed event", "job_id", event.JobID, "type", event.Type)
	}
}

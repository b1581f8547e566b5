package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/blockflow/pkg/channels/gochannel"
	"github.com/dukex/blockflow/pkg/channels/kafka"
	"github.com/dukex/blockflow/pkg/realtime"
)

const realtimeHTTPTimeout = 5 * time.Second

// NewRealtimeSink creates the notification sink for provider. The returned closer
// releases broker connections and is never nil.
func NewRealtimeSink(provider, url string, logger *slog.Logger) (realtime.Sink, io.Closer, error) {
	switch provider {
	case "", "none":
		return realtime.NoopSink{}, nopCloser{}, nil
	case "http":
		if url == "" {
			return nil, nil, fmt.Errorf("realtime provider http requires --realtime-url")
		}

		return realtime.NewHTTPSink(url, &http.Client{Timeout: realtimeHTTPTimeout}), nopCloser{}, nil
	case "kafka":
		publisher, err := kafka.CreatePublisher(watermill.NewSlogLogger(logger), kafka.ParseBrokers(url))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		sink := realtime.NewWatermillSink(publisher)

		return sink, sink, nil
	case "gochannel":
		sink := realtime.NewWatermillSink(gochannel.CreateChannel(watermill.NewSlogLogger(logger)))

		return sink, sink, nil
	default:
		return nil, nil, fmt.Errorf("unsupported realtime provider: %s", provider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

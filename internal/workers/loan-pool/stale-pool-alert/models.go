package stalepoolalert

import (
	"context"
	"time"

	"loan-pool-sync/internal/common/logger"
)

type Output struct {
	StaleCount     int       `json:"staleCount"`
	Cutoff         time.Time `json:"cutoff"`
	Alerted        bool      `json:"alerted"`
	EmailMessageID string    `json:"emailMessageId,omitempty"`
	SNSMessageID   string    `json:"snsMessageId,omitempty"`
}

// StaleCounter counts UNPROCESSED records created at or before cutoff.
type StaleCounter interface {
	CountStale(ctx context.Context, cutoff time.Time) (int, error)
}

type Mailer interface {
	SendTextEmail(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

type Publisher interface {
	PublishToTopic(ctx context.Context, topicARN, subject, message string) (string, error)
}

type ServiceDependencies struct {
	Logger    logger.Logger
	Store     StaleCounter
	Mailer    Mailer
	Publisher Publisher
}

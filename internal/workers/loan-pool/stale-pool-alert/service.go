package stalepoolalert

import (
	"context"
	"fmt"
	"time"

	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"
)

type Service struct {
	config    *Config
	logger    logger.Logger
	store     StaleCounter
	mailer    Mailer
	publisher Publisher
	now       func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"component": "stale-pool-alert"}),
		store:     deps.Store,
		mailer:    deps.Mailer,
		publisher: deps.Publisher,
		now:       time.Now,
	}
}

// AlertMessage is the body sent for count stale records.
func AlertMessage(count int) string {
	return fmt.Sprintf("Found %d unprocessed stale loan data pools", count)
}

// Execute counts stale UNPROCESSED records and notifies the configured
// channels when there is at least one.
func (s *Service) Execute(ctx context.Context) (*Output, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)

	count, err := s.store.CountStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	metrics.LoanPoolStaleRecords.Set(float64(count))

	out := &Output{StaleCount: count, Cutoff: cutoff}
	if count == 0 {
		s.logger.Debug("No stale loan pools", map[string]interface{}{"cutoff": cutoff})
		return out, nil
	}

	message := AlertMessage(count)
	s.logger.Warn(message, map[string]interface{}{
		"staleCount": count,
		"cutoff":     cutoff,
	})

	if s.mailer != nil && len(s.config.Recipients) > 0 {
		id, err := s.mailer.SendTextEmail(ctx, s.config.FromEmail, s.config.Recipients, s.config.Subject, message)
		if err != nil {
			return nil, errors.NewAlertSendFailedError("ses", err)
		}
		out.EmailMessageID = id
		out.Alerted = true
	}

	if s.publisher != nil && s.config.TopicARN != "" {
		id, err := s.publisher.PublishToTopic(ctx, s.config.TopicARN, s.config.Subject, message)
		if err != nil {
			return nil, errors.NewAlertSendFailedError("sns", err)
		}
		out.SNSMessageID = id
		out.Alerted = true
	}

	if !out.Alerted {
		s.logger.Warn("Stale loan pools found but no alert channel is configured", nil)
	} else {
		s.logger.Info("Stale loan pool alert sent", map[string]interface{}{
			"staleCount":     count,
			"emailMessageId": out.EmailMessageID,
			"snsMessageId":   out.SNSMessageID,
		})
	}
	return out, nil
}

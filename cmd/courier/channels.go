package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/channel"
	"github.com/lalithlochan/courier/internal/circuitbreaker"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
)

func loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := channel.LoadAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// buildChannels wires a sender per delivery channel. Every provider-backed
// sender is throttled to the provider's send rate and guarded by a circuit
// breaker; local fallbacks are used as-is.
func buildChannels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*channel.Router, error) {
	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	awsConfig := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := loadAWS(ctx, cfg)
		if err != nil {
			return c, err
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	router := channel.NewRouter(logger)

	var email channel.EmailTransport
	switch cfg.Email.Provider {
	case config.EmailSES:
		c, err := awsConfig()
		if err != nil {
			return nil, err
		}
		email = channel.NewSESTransport(c, cfg.AWS.Endpoint, cfg.Email.From)
	case config.EmailPostmark:
		email = channel.NewPostmarkTransport(cfg.Email.PostmarkServerToken, cfg.Email.PostmarkAccountToken, cfg.Email.From)
	}
	if email != nil {
		router.Handle(db.ChannelEmail, protect(cfg, email.Name(), channel.NewEmailSender(email, logger), cfg.Email.RatePerSecond, logger))
	} else {
		router.Handle(db.ChannelEmail, channel.NewEmailSender(nil, logger))
	}

	if cfg.SMS.Enabled {
		c, err := awsConfig()
		if err != nil {
			return nil, err
		}
		sms := channel.NewSNSSMSTransport(c, cfg.AWS.Endpoint, cfg.SMS.SenderID)
		router.Handle(db.ChannelSMS, protect(cfg, sms.Name(), channel.NewSMSSender(sms, logger), cfg.SMS.RatePerSecond, logger))
	} else {
		router.Handle(db.ChannelSMS, channel.NewSMSSender(nil, logger))
	}

	var push channel.PushTransport
	switch cfg.Push.Provider {
	case config.PushSNS:
		c, err := awsConfig()
		if err != nil {
			return nil, err
		}
		push = channel.NewSNSPushTransport(c, cfg.AWS.Endpoint)
	case config.PushHTTP:
		push = channel.NewHTTPPushTransport(cfg.Push.URL, cfg.Push.AuthToken, cfg.Push.Timeout, logger)
	}
	if push != nil {
		router.Handle(db.ChannelPush, protect(cfg, push.Name(), channel.NewPushSender(push, logger), cfg.Push.RatePerSecond, logger))
	} else {
		router.Handle(db.ChannelPush, channel.NewPushSender(nil, logger))
	}

	logger.Info("delivery channels configured",
		zap.String("email", cfg.Email.Provider),
		zap.Bool("sms", cfg.SMS.Enabled),
		zap.String("push", cfg.Push.Provider),
	)
	return router, nil
}

// protect throttles sender, then puts a breaker in front so an open breaker
// rejects without waiting for a token.
func protect(cfg *config.Config, name string, sender channel.Sender, perSecond float64, logger *zap.Logger) channel.Sender {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:                name,
		MaxFailures:         cfg.Breaker.MaxFailures,
		RecoveryTimeout:     cfg.Breaker.RecoveryTimeout,
		HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
	}, logger)
	breaker.OnStateChange(func(name string, _, to circuitbreaker.State) {
		metrics.SetBreakerState(name, int(to))
	})
	metrics.SetBreakerState(name, int(circuitbreaker.StateClosed))

	throttled := channel.NewThrottledSender(name, sender, perSecond, int(perSecond)+1)
	return circuitbreaker.NewProtectedSender(throttled, breaker, logger).
		OnReject(metrics.RecordBreakerRejection)
}

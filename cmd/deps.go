package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/awsclient"
	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/db"
	"github.com/Psychedelic/terabethia-relayer/kms"
	"github.com/Psychedelic/terabethia-relayer/ledger"
	"github.com/Psychedelic/terabethia-relayer/ledger/ethereum"
	"github.com/Psychedelic/terabethia-relayer/ledger/ic"
	"github.com/Psychedelic/terabethia-relayer/ledger/starknet"
	"github.com/Psychedelic/terabethia-relayer/metrics"
	"github.com/Psychedelic/terabethia-relayer/queue"
	"github.com/Psychedelic/terabethia-relayer/txrelayer"
)

// app holds everything a command needs, built once from the config file.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	deps     txrelayer.Deps
}

func loadConfigAndLogger(c *cobra.Command) (config.Config, *zap.Logger, error) {
	configFile, err := c.Flags().GetString("config")
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	enableDebug, err := c.Flags().GetBool("debug")
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.CreateLogger(enableDebug)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newApp builds the clients. The destination needs KMS access and is only built when asked for.
func newApp(c *cobra.Command, needsDest bool) (*app, error) {
	cfg, logger, err := loadConfigAndLogger(c)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	source, err := newSource(c.Context(), cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store, err := db.NewStore(database, cfg.Store.ClaimCacheSize)
	if err != nil {
		return nil, err
	}

	outbound, check, err := newQueues(cfg.Queue)
	if err != nil {
		return nil, err
	}

	var dest ledger.Destination
	if needsDest {
		if dest, err = newDestination(c.Context(), cfg); err != nil {
			return nil, err
		}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		deps: txrelayer.Deps{
			Logger:   logger.Sugar(),
			Store:    store,
			Outbound: outbound,
			Check:    check,
			Source:   source,
			Dest:     dest,
			Alerts:   alert.New(cfg.Alert, logger),
			Metrics:  metrics.New(registry),
			GroupID:  cfg.Queue.GroupId,
		},
	}, nil
}

func (a *app) Close() {
	if err := a.deps.Store.Close(); err != nil {
		a.logger.Sugar().Warnf("Failed to close store, error: %v", err)
	}
	_ = a.logger.Sync()
}

func newQueues(cfg config.QueueConfig) (outbound queue.Queue, check queue.Queue, err error) {
	switch cfg.Kind {
	case config.QueueSQS:
		sess, err := awsclient.NewSession(cfg.SQS.Region, cfg.SQS.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		client := sqs.New(sess)
		return queue.NewSQSQueue(client, cfg.SQS.OutboundUrl, cfg.VisibilityTimeout),
			queue.NewSQSQueue(client, cfg.SQS.CheckUrl, cfg.VisibilityTimeout), nil

	case config.QueueRedis:
		client, err := queue.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRedisQueue(client, cfg.Redis.OutboundQueue, cfg.VisibilityTimeout, cfg.DedupWindow),
			queue.NewRedisQueue(client, cfg.Redis.CheckQueue, cfg.VisibilityTimeout, cfg.DedupWindow), nil

	case config.QueueMemory:
		return queue.NewMemoryQueue("outbound", cfg.VisibilityTimeout, cfg.DedupWindow),
			queue.NewMemoryQueue("check", cfg.VisibilityTimeout, cfg.DedupWindow), nil

	default:
		return nil, nil, fmt.Errorf("unsupported queue kind: %q", cfg.Kind)
	}
}

// newSource calls the canister as the KMS identity key when one is configured.
func newSource(ctx context.Context, cfg config.Config) (*ic.Client, error) {
	var id *ic.KMSIdentity
	if cfg.Source.IdentityKeyId != "" {
		keys, err := kms.New(config.KMSConfig{
			Region:   cfg.KMS.Region,
			Endpoint: cfg.KMS.Endpoint,
			KeyId:    cfg.Source.IdentityKeyId,
		})
		if err != nil {
			return nil, err
		}
		if id, err = ic.NewKMSIdentity(ctx, keys, cfg.Source.Timeout); err != nil {
			return nil, fmt.Errorf("load canister identity: %w", err)
		}
	}

	return ic.New(cfg.Source, id)
}

func newDestination(ctx context.Context, cfg config.Config) (ledger.Destination, error) {
	keys, err := kms.New(cfg.KMS)
	if err != nil {
		return nil, err
	}

	switch cfg.Destination.Kind {
	case config.DestinationStarknet:
		cache, err := kms.NewKeyCacheFromBase64(keys, cfg.Destination.Starknet.EncryptedPrivateKey)
		if err != nil {
			return nil, err
		}
		return starknet.New(cfg.Destination.Starknet, cache)

	case config.DestinationEthereum:
		ethCfg := cfg.Destination.Ethereum
		chainID := big.NewInt(ethCfg.ChainId)

		var signer ethereum.Signer
		switch ethCfg.Signer {
		case config.SignerKMS:
			signer, err = ethereum.NewKMSSigner(ctx, chainID, keys)
		case config.SignerLocal:
			var cache *kms.KeyCache
			if cache, err = kms.NewKeyCacheFromBase64(keys, ethCfg.EncryptedPrivateKey); err == nil {
				signer, err = ethereum.NewLocalECDSASigner(ctx, chainID, cache)
			}
		default:
			err = fmt.Errorf("unsupported ethereum signer: %q", ethCfg.Signer)
		}
		if err != nil {
			return nil, err
		}

		client, err := ethereum.Dial(ethCfg.RpcUrl)
		if err != nil {
			return nil, err
		}
		return ethereum.New(client, signer, ethCfg)

	default:
		return nil, fmt.Errorf("unsupported destination kind: %q", cfg.Destination.Kind)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/boltsource"
	"github.com/acksell/cachekey/config"
	"github.com/acksell/cachekey/dynamodb/ddbsource"
	"github.com/acksell/cachekey/dynamodb/ddbstore"
	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/acksell/cachekey/stampfmt"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"
)

// store is what the commands need from a backend.
type store interface {
	cachekey.CollectionStore
	Entity(ctx context.Context, typeName, id string) (cachekey.TimestampedEntity, error)
	Touch(ctx context.Context, typeName, id, field string) error
}

type session struct {
	log     *logrus.Logger
	formats *stampfmt.Registry
	store   store
	close   func()
}

// errNoData is returned when a command reading stored entities would run
// against a fresh in-memory store.
var errNoData = errors.New("no persistent store configured: set dataDir in cachekey.yaml or pass --db")

// setup loads configuration and opens the backend. Commands that read or
// write stored entities pass persistent so an empty in-memory store is
// rejected up front.
func setup(ctx context.Context, flags commonFlags, persistent bool) (*session, error) {
	log := logrus.New()
	if flags.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath, log)
	} else {
		cfg, err = config.Load(log)
	}
	if err != nil {
		return nil, err
	}
	if flags.backend != "" {
		cfg.Backend = config.Backend(flags.backend)
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if persistent && inMemory(cfg) {
		return nil, errNoData
	}

	defs := cfg.TableDefinitions()
	log.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"tables":  len(defs),
	}).Debug("opening store")

	s, closeFn, err := openStore(ctx, cfg, defs, log)
	if err != nil {
		return nil, err
	}
	return &session{
		log:     log,
		formats: cfg.Registry(),
		store:   s,
		close: func() {
			if err := closeFn(); err != nil {
				log.WithError(err).Warn("closing store")
			}
		},
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, defs []table.TableDefinition, log *logrus.Logger) (store, func() error, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		s, err := boltsource.Open(cfg.DataDir, defs, boltsource.Options{})
		if err != nil {
			return nil, nil, err
		}
		return boltStore{s}, s.Close, nil

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		src, err := ddbsource.New(dynamodb.NewFromConfig(awsCfg), defs)
		if err != nil {
			return nil, nil, err
		}
		return ddbStore{src}, func() error { return nil }, nil

	default:
		db, err := ddbstore.New(ddbstore.StoreOptions{
			Path:     cfg.DataDir,
			InMemory: cfg.DataDir == "",
			Logger:   log,
		}, defs...)
		if err != nil {
			return nil, nil, err
		}
		src, err := ddbsource.New(db, defs)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return ddbStore{src}, db.Close, nil
	}
}

func inMemory(cfg config.Config) bool {
	return (cfg.Backend == "" || cfg.Backend == config.BackendBadger) && cfg.DataDir == ""
}

type ddbStore struct {
	*ddbsource.Source
}

func (s ddbStore) Entity(ctx context.Context, typeName, id string) (cachekey.TimestampedEntity, error) {
	item, err := s.Load(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// boltStore keeps View promoted so collection keys are read from one
// transaction.
type boltStore struct {
	*boltsource.Store
}

func (s boltStore) Entity(ctx context.Context, typeName, id string) (cachekey.TimestampedEntity, error) {
	rec, err := s.Get(ctx, typeName, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/ersim-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/ersim-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

// caseStore is the case store surface the commands use.
type caseStore interface {
	cases.CaseReader
	cases.CaseWriter
}

// deps carries the collaborators a command needs. Constructors are
// fields so commands connect only to what they use.
type deps struct {
	cfg        *appconfig.Config
	logger     *logging.Logger
	httpClient cases.HTTPDoer
	openStore  func(ctx context.Context) (caseStore, func(), error)
	objects    func(ctx context.Context) (cases.ObjectPutter, error)
	llm        func(ctx context.Context) (conversation.LLMClient, error)
}

func newDeps(cfg *appconfig.Config, logger *logging.Logger) *deps {
	return &deps{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		openStore: func(ctx context.Context) (caseStore, func(), error) {
			pool, err := bootstrap.BuildPgxPool(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return cases.NewStore(pool), pool.Close, nil
		},
		objects: func(ctx context.Context) (cases.ObjectPutter, error) {
			awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return bootstrap.BuildS3Client(awsCfg, cfg), nil
		},
		llm: func(ctx context.Context) (conversation.LLMClient, error) {
			awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return bootstrap.BuildLLMClient(ctx, cfg, awsCfg)
		},
	}
}

package svc

import (
	"context"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"botfleet/internal/cache"
	"botfleet/internal/config"
	"botfleet/internal/model"
	"botfleet/internal/repo"
	_ "botfleet/pkg/broker/providers" // register capital/binance/coinbase/custom/sim
	"botfleet/pkg/chart"
	"botfleet/pkg/confkit"
	cryptopkg "botfleet/pkg/crypto"
	"botfleet/pkg/decision"
	"botfleet/pkg/journal"
	llmpkg "botfleet/pkg/llm"
	"botfleet/pkg/orchestrator"
	"botfleet/pkg/prompt"
	"botfleet/pkg/ratecoord"
)

type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn
	Repo   *repo.Repo
	Box    *cryptopkg.Box
	Store  *cache.Store // nil when no Redis is configured
	TTL    cache.TTLSet

	LLMClient *llmpkg.Client
	Decisions *decision.Chain

	Rate      *ratecoord.Coordinator
	Coord     *orchestrator.Coordinator
	Runtimes  *orchestrator.Runtimes
	Evaluator *orchestrator.Evaluator
	Monitor   *orchestrator.Monitor
	Scheduler *orchestrator.Scheduler
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		Box:    cryptopkg.NewBox(c.CredentialsKey),
		TTL:    cache.NewTTLSet(c.TTL),
	}

	if c.Postgres.DataSource == "" {
		log.Fatal("config: postgres.dataSource (DATABASE_URL) is required")
	}
	svc.DBConn = sqlx.NewSqlConn("pgx", c.Postgres.DataSource)

	repository, err := repo.New(repo.Models{
		Users:      model.NewUsersModel(svc.DBConn),
		Creds:      model.NewCredentialsModel(svc.DBConn),
		Strategies: model.NewStrategiesModel(svc.DBConn),
		Bots:       model.NewBotsModel(svc.DBConn),
		Trades:     model.NewTradesModel(svc.DBConn),
		Evals:      model.NewEvaluationsModel(svc.DBConn),
		Pairs:      model.NewTradingPairsModel(svc.DBConn),
		Ownership:  model.NewPositionOwnershipModel(svc.DBConn),
		Snapshots:  model.NewPerformanceSnapshotsModel(svc.DBConn),
	}, svc.Box)
	if err != nil {
		log.Fatalf("failed to build repo: %v", err)
	}
	svc.Repo = repository

	if len(c.Cache) > 0 {
		svc.Store = cache.NewStore(c.Cache[0].Host, c.Cache[0].Pass, svc.TTL)
	}

	if c.LLM.File != "" && c.LLM.Value != nil {
		client, err := llmpkg.NewClient(c.LLM.Value)
		if err != nil {
			log.Fatalf("failed to init llm client: %v", err)
		}
		svc.LLMClient = client
		svc.Decisions = decision.New(client, c.DecisionModel)
		if c.DecisionPromptFile != "" {
			tmplPath := confkit.ResolvePath(c.BaseDir(), c.DecisionPromptFile)
			tmpl, err := prompt.NewTemplate(tmplPath, nil)
			if err != nil {
				log.Fatalf("failed to load decision prompt template: %v", err)
			}
			svc.Decisions.WithTemplate(tmpl)
		}
	}

	svc.Rate = ratecoord.New()
	svc.Coord = orchestrator.NewCoordinator().WithMinGap(c.Orchestrator.InterBotGap)
	svc.Runtimes = orchestrator.NewRuntimes(repository)

	renderer, store := buildChartPipeline(c)
	svc.Evaluator = &orchestrator.Evaluator{
		Bots:       repository,
		Trades:     repository,
		Evals:      repository,
		Portfolio:  repository,
		Rules:      repository,
		Runtimes:   svc.Runtimes,
		Rate:       svc.Rate,
		Coord:      svc.Coord,
		Decisions:  svc.Decisions,
		Renderer:   renderer,
		Store:      store,
		Journal:    journal.NewWriter("journal"),
		ChartLocal: c.Chart.OutputDir,
		OHLCCount:  c.Orchestrator.ChartCandles,
	}
	svc.Monitor = &orchestrator.Monitor{
		Bots:              repository,
		Trades:            repository,
		Rules:             repository,
		Runtimes:          svc.Runtimes,
		Rate:              svc.Rate,
		Tick:              c.Orchestrator.MonitorTick,
		MaxTimeInPosition: c.Orchestrator.MaxTimeInPosition,
	}
	svc.Scheduler = orchestrator.NewScheduler(svc.Coord, svc.dispatchEvaluation)

	return svc
}

// buildChartPipeline resolves the renderer endpoints and the object store
// per the chart config; a missing store URL degrades to local disk.
func buildChartPipeline(c config.Config) (chart.Renderer, chart.ObjectStore) {
	endpoints := c.Chart.Endpoints
	if c.Chart.EngineURL != "" {
		endpoints = append([]string{c.Chart.EngineURL}, endpoints...)
	}
	if len(endpoints) == 0 {
		endpoints = []string{"http://127.0.0.1:5001/render", "http://127.0.0.1:8787/render"}
	}
	renderer := chart.NewHTTPRenderer(endpoints, nil)

	var store chart.ObjectStore
	if c.Chart.StoreURL != "" {
		store = chart.NewHTTPStore(c.Chart.StoreURL)
	} else {
		store = chart.NewDirStore(c.Chart.OutputDir)
	}
	return renderer, store
}

// dispatchEvaluation is the Scheduler's dispatch hook: it runs one
// evaluation attempt, holding the cross-process Redis guard when one is
// configured (the in-process Coordinator already guarantees one-per-bot
// within this process).
func (svc *ServiceContext) dispatchEvaluation(ctx context.Context, botID string) {
	if svc.Store != nil {
		ok, err := svc.Store.AcquireBotLock(ctx, botID)
		if err == nil && !ok {
			return
		}
		if err == nil {
			defer func() { _ = svc.Store.ReleaseBotLock(ctx, botID) }()
		}
	}
	if _, err := svc.Evaluator.Run(ctx, botID); err != nil {
		// Already logged with context inside the evaluator; nothing to do.
		_ = err
	}
}

// ConfigureCredential applies a credential's admission policy to the Rate
// Coordinator; called when a credential is first used or updated.
func (svc *ServiceContext) ConfigureCredential(credentialID string, maxConcurrent int) {
	svc.Rate.Configure(credentialID, ratecoord.Config{
		MaxConcurrent: maxConcurrent,
		MinGap:        svc.Config.Orchestrator.MinCallGap,
	})
}

// DisposeCredential tears down per-credential runtime state on credential
// delete (spec: lifecycles tied to the credential, no process-wide
// leftovers).
func (svc *ServiceContext) DisposeCredential(credentialID string) {
	svc.Rate.Dispose(credentialID)
	svc.Runtimes.Dispose(credentialID)
}

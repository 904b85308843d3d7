package container

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/garyjia/fulfillment-engine/internal/application/dispatcher"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/service"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/document"
	infraLark "github.com/garyjia/fulfillment-engine/internal/infrastructure/external/lark"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/external/lognotifier"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/external/masterdata"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/persistence/dynamo"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/persistence/memory"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/fulfillment-engine/pkg/database"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds the instance repository and, for DynamoDB, its client.
type StorageBundle struct {
	Repository port.InstanceRepository
	Dynamo     *dynamodb.Client
	Table      string
}

// InvoicingBundle holds invoice numbering and rendering.
type InvoicingBundle struct {
	Issuer   port.InvoiceIssuer
	Renderer port.InvoiceRenderer
}

// ProvideDatabase opens the SQLite database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(ctx, database.MigrationsFrom(cfg.MigrationsDir)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideStorage creates the instance repository for the configured driver.
func ProvideStorage(ctx context.Context, cfg *Config, db *DatabaseBundle, logger *zap.Logger) (*StorageBundle, error) {
	switch cfg.Database.Driver {
	case DriverSQLite, "":
		return &StorageBundle{
			Repository: sqlite.NewInstanceRepository(db.TransactionMgr, logger),
		}, nil

	case DriverMemory:
		logger.Warn("Instances are kept in memory and are lost on shutdown")
		return &StorageBundle{
			Repository: memory.NewInstanceRepository(),
		}, nil

	case DriverDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Table:           cfg.DynamoDB.Table,
			Region:          cfg.DynamoDB.Region,
			Endpoint:        cfg.DynamoDB.Endpoint,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		if cfg.DynamoDB.CreateTable {
			if err := dynamo.EnsureTable(ctx, client, cfg.DynamoDB.Table); err != nil {
				return nil, err
			}
		}
		return &StorageBundle{
			Repository: dynamo.NewInstanceRepository(client, cfg.DynamoDB.Table, logger),
			Dynamo:     client,
			Table:      cfg.DynamoDB.Table,
		}, nil
	}

	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// ProvideMasterData returns the remote master data client, the seed file
// source, or nil when neither is configured.
func ProvideMasterData(cfg *MasterDataConfig, logger *zap.Logger) (port.MasterData, error) {
	switch {
	case cfg.BaseURL != "":
		logger.Info("Using master data service", zap.String("base_url", cfg.BaseURL))
		return masterdata.NewHTTPClient(cfg.BaseURL, cfg.Timeout, logger), nil
	case cfg.SeedFile != "":
		logger.Info("Using master data seed", zap.String("path", cfg.SeedFile))
		static, err := masterdata.LoadStatic(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		return static, nil
	}
	logger.Warn("No master data source configured; references are not checked")
	return nil, nil
}

// ProvideNotifier posts to Lark when a chat is configured and logs otherwise.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.Notifier {
	if cfg.ChatID == "" {
		return lognotifier.New(logger)
	}
	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
	}, logger)
	return infraLark.NewMessenger(client, cfg.ChatID, logger)
}

// ProvideInvoicing creates the local invoice issuer and the xlsx renderer.
func ProvideInvoicing(cfg *InvoiceConfig, db *DatabaseBundle, logger *zap.Logger) (*InvoicingBundle, error) {
	renderer, err := document.NewInvoiceRenderer(document.SellerInfo{
		Name:  cfg.SellerName,
		GSTIN: cfg.SellerGSTIN,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &InvoicingBundle{
		Issuer:   sqlite.NewInvoiceIssuer(db.TransactionMgr, cfg.Prefix, cfg.SellerGSTIN, logger),
		Renderer: renderer,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKeyValueLogger(logger.Named("dispatcher"))),
	)
}

// WorkflowDeps groups the dependencies of the workflow engine.
type WorkflowDeps struct {
	Repository port.InstanceRepository
	MasterData port.MasterData
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the engine with the order and installation definitions.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.FulfillmentEngine, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("instance repository is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return workflow.NewEngine(deps.Repository,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKeyValueLogger(deps.Logger.Named("workflow"))),
		workflow.WithDefinition(entity.KindOrder, workflow.NewOrderDefinition()),
		workflow.WithDefinition(entity.KindInstallation, workflow.NewInstallationDefinition(deps.MasterData)),
	), nil
}

// ServiceDeps groups the dependencies of the application services.
type ServiceDeps struct {
	Engine     workflow.FulfillmentEngine
	MasterData port.MasterData
	Invoicing  *InvoicingBundle
	Notifier   port.Notifier
	Dispatcher dispatcher.Dispatcher
	Policy     ledger.Policy
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes the
// notification service to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if deps.Invoicing == nil {
		return nil, fmt.Errorf("invoicing is required")
	}

	logger := utils.NewKeyValueLogger(deps.Logger.Named("service"))
	bundle := &ServiceBundle{
		Orders: service.NewOrderService(deps.Engine, deps.MasterData,
			deps.Invoicing.Issuer, deps.Invoicing.Renderer, deps.Policy, logger),
		Installations: service.NewInstallationService(deps.Engine, deps.MasterData, logger),
		Notification:  service.NewNotificationService(deps.Notifier, logger),
	}
	bundle.Notification.Register(deps.Dispatcher)
	return bundle, nil
}

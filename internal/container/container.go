package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/garyjia/fulfillment-engine/internal/application/dispatcher"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/service"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/fulfillment-engine/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Initialization is ordered and teardown runs in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB   *database.DB
	db      *sqlite.DB
	storage *StorageBundle

	// Infrastructure - External
	masterData port.MasterData
	notifier   port.Notifier
	invoicing  *InvoicingBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.FulfillmentEngine
	services   *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Orders        service.OrderService
	Installations service.InstallationService
	Notification  service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database
// 2. Instance storage
// 3. External clients (master data, notifier, invoicing)
// 4. Dispatcher and workflow engine
// 5. Application services
//
// A failed start releases whatever was already opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization",
		zap.String("driver", c.config.Database.Driver))

	if err := c.start(ctx); err != nil {
		c.teardown()
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) start(ctx context.Context) error {
	// Step 1: Database
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger.Named("database"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr
	c.logger.Info("Database initialized")

	// Step 2: Instance storage
	storage, err := ProvideStorage(ctx, c.config, dbBundle, c.logger.Named("repository"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.storage = storage
	c.logger.Info("Instance storage initialized")

	// Step 3: External clients
	c.masterData, err = ProvideMasterData(&c.config.MasterData, c.logger.Named("masterdata"))
	if err != nil {
		return fmt.Errorf("failed to initialize master data: %w", err)
	}
	c.notifier = ProvideNotifier(&c.config.Lark, c.logger.Named("notifier"))
	c.invoicing, err = ProvideInvoicing(&c.config.Invoice, dbBundle, c.logger.Named("invoice"))
	if err != nil {
		return fmt.Errorf("failed to initialize invoicing: %w", err)
	}
	c.logger.Info("External clients initialized")

	// Step 4: Dispatcher and workflow engine
	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine, err = ProvideWorkflowEngine(&WorkflowDeps{
		Repository: c.storage.Repository,
		MasterData: c.masterData,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	// Step 5: Application services
	c.services, err = ProvideServices(&ServiceDeps{
		Engine:     c.engine,
		MasterData: c.masterData,
		Invoicing:  c.invoicing,
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Policy:     ledger.Policy{AllowOverpayment: c.config.Workflow.AllowOverpayment},
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	// Pending notifications drain before the database goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.sqlDB = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	// Check database
	if c.sqlDB != nil {
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", fmt.Errorf("ping failed: %w", err))
		} else {
			set("database", nil)
		}
	} else {
		set("database", fmt.Errorf("not initialized"))
	}

	// Check DynamoDB table
	if c.storage != nil && c.storage.Dynamo != nil {
		_, err := c.storage.Dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(c.storage.Table),
		})
		if err != nil {
			set("dynamodb", fmt.Errorf("describe table failed: %w", err))
		} else {
			set("dynamodb", nil)
		}
	}

	// Check dispatcher and engine
	if c.dispatcher == nil {
		set("dispatcher", fmt.Errorf("not initialized"))
	} else {
		set("dispatcher", nil)
	}
	if c.engine == nil {
		set("workflow", fmt.Errorf("not initialized"))
	} else {
		set("workflow", nil)
	}

	return status
}

// HealthCheck adapts Health to the HTTP health endpoint.
func (c *Container) HealthCheck(ctx context.Context) (bool, interface{}) {
	status := c.Health(ctx)
	return status.Overall, status.Components
}

// Getters for accessing container components

// Repository returns the instance repository.
func (c *Container) Repository() port.InstanceRepository {
	if c.storage == nil {
		return nil
	}
	return c.storage.Repository
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.FulfillmentEngine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

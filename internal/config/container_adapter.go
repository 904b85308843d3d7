package config

import (
	"github.com/garyjia/fulfillment-engine/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		DynamoDB: container.DynamoDBConfig{
			Table:           c.DynamoDB.Table,
			Region:          c.DynamoDB.Region,
			Endpoint:        c.DynamoDB.Endpoint,
			AccessKeyID:     c.DynamoDB.AccessKeyID,
			SecretAccessKey: c.DynamoDB.SecretAccessKey,
			CreateTable:     c.DynamoDB.CreateTable,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			ChatID:    c.Lark.ChatID,
		},
		Invoice: container.InvoiceConfig{
			Prefix:      c.Invoice.Prefix,
			SellerName:  c.Invoice.SellerName,
			SellerGSTIN: c.Invoice.SellerGSTIN,
		},
		MasterData: container.MasterDataConfig{
			BaseURL:  c.MasterData.BaseURL,
			Timeout:  c.MasterData.Timeout,
			SeedFile: c.MasterData.SeedFile,
		},
		Workflow: container.WorkflowConfig{
			AllowOverpayment: c.Workflow.AllowOverpayment,
		},
	}
}

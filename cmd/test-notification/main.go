package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/config"
	"github.com/garyjia/fulfillment-engine/internal/container"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
)

// Sends one sample notification through the configured channel. With
// lark.chat_id set it lands in the Lark group; otherwise it is logged.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	instanceID := flag.String("instance", "ord-test", "instance id shown in the message")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{Level: "debug", Format: "console"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cc := cfg.ToContainerConfig()
	if cc.Lark.ChatID == "" {
		fmt.Println("lark.chat_id is empty; the notification is written to the log only")
	} else {
		fmt.Printf("Sending to Lark chat %s\n", cc.Lark.ChatID)
	}
	notifier := container.ProvideNotifier(&cc.Lark, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = notifier.Notify(ctx, port.Notification{
		InstanceID: *instanceID,
		Kind:       entity.KindOrder,
		Title:      fmt.Sprintf("Test notification for order %s", *instanceID),
		Body:       "CONFIRMED -> ALLOCATED by test-notification",
	})
	if err != nil {
		log.Fatalf("✗ Notification failed: %v", err)
	}
	fmt.Println("✓ Notification sent")
}

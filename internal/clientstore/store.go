// Package clientstore resolves API keys to client directory records.
//
// Two backends exist: a JSON file reloaded on mtime change, and a DynamoDB
// table queried through its api_key GSI with a short positive-only cache.
// A nil store is a valid configuration: the gateway then accepts only the
// legacy environment keys.
package clientstore

import (
	"context"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/config"
)

// Store looks up a client record by its gateway API key.
// A miss returns (nil, nil); errors are backend faults.
type Store interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*gateway.ClientRecord, error)
}

// New builds the store selected by settings. It returns (nil, nil) when no
// directory is configured, which the caller treats as legacy-key-only mode.
func New(ctx context.Context, settings *config.Settings, logger *slog.Logger) (Store, error) {
	switch settings.ClientStoreBackend {
	case config.BackendJSON:
		if settings.ClientConfigPath == "" {
			return nil, nil
		}
		if _, err := os.Stat(settings.ClientConfigPath); err != nil {
			logger.Info("client config file absent, legacy keys only",
				slog.String("path", settings.ClientConfigPath))
			return nil, nil
		}
		return NewJSONStore(settings.ClientConfigPath, logger), nil

	case config.BackendDynamoDB:
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(settings.AWSRegion))
		if err != nil {
			return nil, err
		}
		return NewDynamoDBStore(dynamodb.NewFromConfig(cfg), settings.DynamoDBTableName, logger)
	}
	return nil, nil
}

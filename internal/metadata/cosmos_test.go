package metadata

import (
	"context"
	"strings"
	"testing"

	"github.com/galleryd/galleryd/internal/config"
)

func TestNewCosmosStoreConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.CosmosConfig
		want string
	}{
		{"nil config", nil, "cosmos config is required"},
		{"missing endpoint", &config.CosmosConfig{MasterKey: "a2V5", Database: "db", Container: "c"}, "endpoint is required"},
		{"missing master key", &config.CosmosConfig{Endpoint: "https://acct.documents.azure.com", Database: "db", Container: "c"}, "master key is required"},
		{"missing database", &config.CosmosConfig{Endpoint: "https://acct.documents.azure.com", MasterKey: "a2V5", Container: "c"}, "database name is required"},
		{"missing container", &config.CosmosConfig{Endpoint: "https://acct.documents.azure.com", MasterKey: "a2V5", Database: "db"}, "container name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCosmosStore(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("NewCosmosStore succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

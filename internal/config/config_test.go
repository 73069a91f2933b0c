package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ddbprov "github.com/halcyon-systems/halcyon/internal/provider/dynamodb"
	"github.com/halcyon-systems/halcyon/internal/provider/redis"
)

const validMemoryConfig = `
instanceId: home
provider: memory
platform:
  baseUrl: http://homeassistant.local:8123
`

func TestParse_MemoryProvider(t *testing.T) {
	cfg, err := Parse([]byte(validMemoryConfig))
	require.NoError(t, err)

	assert.Equal(t, "home", cfg.InstanceID)
	assert.Equal(t, "memory", cfg.Provider)
	assert.Equal(t, "http://homeassistant.local:8123", cfg.Platform.BaseURL)
	// Normalize fills the healing defaults.
	assert.Equal(t, 30, cfg.Healing.ValidationWindowSeconds)
	assert.Equal(t, 120, cfg.Healing.CascadeTimeoutSeconds)
}

func TestParse_RedisProviderSection(t *testing.T) {
	cfg, err := Parse([]byte(`
instanceId: home
provider: redis
platform:
  baseUrl: http://homeassistant.local:8123
redis:
  addr: localhost:6379
  db: 2
  keyPrefix: halcyon
`))
	require.NoError(t, err)

	rc, ok := cfg.Redis.(*redis.Config)
	require.True(t, ok, "redis section decoded into its concrete type")
	assert.Equal(t, "localhost:6379", rc.Addr)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, "halcyon", rc.KeyPrefix)
}

func TestParse_DynamoDBProviderSection(t *testing.T) {
	cfg, err := Parse([]byte(`
instanceId: home
provider: dynamodb
platform:
  baseUrl: http://homeassistant.local:8123
dynamodb:
  tableName: halcyon
  region: us-east-1
  createTable: true
`))
	require.NoError(t, err)

	dc, ok := cfg.DynamoDB.(*ddbprov.Config)
	require.True(t, ok, "dynamodb section decoded into its concrete type")
	assert.Equal(t, "halcyon", dc.TableName)
	assert.Equal(t, "us-east-1", dc.Region)
	assert.True(t, dc.CreateTable)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance id",
			yaml: "provider: memory\nplatform:\n  baseUrl: http://x\n",
			want: "instanceId",
		},
		{
			name: "missing provider",
			yaml: "instanceId: home\nplatform:\n  baseUrl: http://x\n",
			want: "provider",
		},
		{
			name: "unknown provider",
			yaml: "instanceId: home\nprovider: etcd\nplatform:\n  baseUrl: http://x\n",
			want: "unknown provider",
		},
		{
			name: "redis without addr",
			yaml: "instanceId: home\nprovider: redis\nplatform:\n  baseUrl: http://x\nredis:\n  db: 1\n",
			want: "redis.addr",
		},
		{
			name: "dynamodb without table",
			yaml: "instanceId: home\nprovider: dynamodb\nplatform:\n  baseUrl: http://x\ndynamodb:\n  region: us-east-1\n",
			want: "dynamodb.tableName",
		},
		{
			name: "missing platform url",
			yaml: "instanceId: home\nprovider: memory\n",
			want: "platform.baseUrl",
		},
		{
			name: "webhook alert without url",
			yaml: "instanceId: home\nprovider: memory\nplatform:\n  baseUrl: http://x\nalerts:\n  - type: webhook\n",
			want: "webhook url",
		},
		{
			name: "unknown alert type",
			yaml: "instanceId: home\nprovider: memory\nplatform:\n  baseUrl: http://x\nalerts:\n  - type: pager\n",
			want: "unknown type",
		},
		{
			name: "malformed yaml",
			yaml: "instanceId: [",
			want: "parsing config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "halcyon.yaml"), []byte(validMemoryConfig), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.InstanceID)

	_, err = Load(t.TempDir())
	require.Error(t, err, "missing halcyon.yaml")
}

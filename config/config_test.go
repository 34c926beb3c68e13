package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
source:
  gatewayUrl: http://127.0.0.1:8000
  canisterId: timop-6qaaa-aaaab-qaeea-cai
destination:
  kind: starknet
  starknet:
    rpcUrl: http://127.0.0.1:5050/rpc
    accountAddress: "0x123"
    contractAddress: "0x456"
    chainId: "0x534e5f474f45524c49"
    encryptedPrivateKey: "c2VjcmV0"
kms:
  region: us-west-2
  keyId: arn:aws:kms:us-west-2:000000000000:key/relayer
store:
  kind: leveldb
  leveldb:
    dir: /tmp/relayer
queue:
  kind: memory
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, DestinationStarknet, cfg.Destination.Kind)
	require.Equal(t, "consume_message", cfg.Destination.Starknet.EntryPoint)
	require.Equal(t, DefaultMessageGroupID, cfg.Queue.GroupId)
	require.Equal(t, time.Minute*5, cfg.Queue.DedupWindow)
	require.Equal(t, 1, cfg.Sender.Concurrency)
	require.Equal(t, time.Minute*15, cfg.Sender.CheckDelay)
	require.Equal(t, uint(3), cfg.Sender.BookkeepingAttempts)
	require.Equal(t, time.Minute, cfg.Poller.Interval)
	require.Equal(t, "auto", cfg.Log.Format)
	require.Equal(t, time.Minute*5, cfg.Source.IngressExpiry)
	require.Empty(t, cfg.Source.IdentityKeyId)
}

func TestNewConfig_SenderConcurrencyMustBeOne(t *testing.T) {
	_, err := NewConfig(writeConfig(t, sampleConfig+"sender:\n  concurrency: 4\n"))
	require.ErrorContains(t, err, "sender concurrency must be exactly 1")
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorContains(t, err, "no config file found")
}

func TestNewConfig_EnvOverride(t *testing.T) {
	t.Setenv("RELAYER_SOURCE_CANISTERID", "aaaaa-aa")
	cfg, err := NewConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "aaaaa-aa", cfg.Source.CanisterId)
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		cfg, err := NewConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(cfg *Config)
		errMsg string
	}{
		{"unknown destination", func(cfg *Config) { cfg.Destination.Kind = "solana" }, "unsupported destination kind"},
		{"unknown store", func(cfg *Config) { cfg.Store.Kind = "bolt" }, "unsupported store kind"},
		{"sqs without urls", func(cfg *Config) { cfg.Queue.Kind = QueueSQS }, "sqs outboundUrl"},
		{"missing kms key", func(cfg *Config) { cfg.KMS.KeyId = "" }, "kms keyId"},
		{"missing canister", func(cfg *Config) { cfg.Source.CanisterId = "" }, "canisterId"},
		{"ethereum finality below confirmations", func(cfg *Config) {
			cfg.Destination.Kind = DestinationEthereum
			cfg.Destination.Ethereum = EthereumConfig{
				RpcUrl: "http://127.0.0.1:8545", ContractAddress: "0x1", ChainId: 1,
				Confirmations: 10, FinalityDepth: 5, Signer: SignerKMS,
			}
		}, "finalityDepth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestNewRootLogger(t *testing.T) {
	for _, format := range []string{"auto", "console", "json", "logfmt"} {
		logger, err := NewRootLogger(format, true)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	_, err := NewRootLogger("xml", false)
	require.Error(t, err)
}

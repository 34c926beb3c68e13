package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DestinationStarknet = "starknet"
	DestinationEthereum = "ethereum"

	StoreDynamoDB = "dynamodb"
	StoreLevelDB  = "leveldb"
	StoreMysql    = "mysql"

	QueueSQS    = "sqs"
	QueueRedis  = "redis"
	QueueMemory = "memory"

	SignerKMS   = "kms"
	SignerLocal = "local"

	DefaultMessageGroupID = "starknet"
	EnvPrefix             = "RELAYER"
)

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	KMS         KMSConfig         `mapstructure:"kms"`
	Store       StoreConfig       `mapstructure:"store"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Poller      PollerConfig      `mapstructure:"poller"`
	Sender      SenderConfig      `mapstructure:"sender"`
	Checker     CheckerConfig     `mapstructure:"checker"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Alert       AlertConfig       `mapstructure:"alert"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
}

// SourceConfig points at the canister holding outgoing messages.
type SourceConfig struct {
	GatewayUrl string        `mapstructure:"gatewayUrl"`
	CanisterId string        `mapstructure:"canisterId"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// IdentityKeyId is the KMS secp256k1 key the relay calls the canister as.
	// Empty means anonymous calls.
	IdentityKeyId string        `mapstructure:"identityKeyId"`
	IngressExpiry time.Duration `mapstructure:"ingressExpiry"`
	// FetchRootKey is only for local replicas.
	FetchRootKey bool `mapstructure:"fetchRootKey"`
}

type DestinationConfig struct {
	Kind     string         `mapstructure:"kind"`
	Starknet StarknetConfig `mapstructure:"starknet"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
}

type StarknetConfig struct {
	RpcUrl          string `mapstructure:"rpcUrl"`
	AccountAddress  string `mapstructure:"accountAddress"`
	ContractAddress string `mapstructure:"contractAddress"`
	EntryPoint      string `mapstructure:"entryPoint"`
	ChainId         string `mapstructure:"chainId"`
	MaxFee          string `mapstructure:"maxFee"`
	// EncryptedPrivateKey is base64 KMS ciphertext of the account key.
	EncryptedPrivateKey string `mapstructure:"encryptedPrivateKey"`
}

type EthereumConfig struct {
	RpcUrl          string `mapstructure:"rpcUrl"`
	ContractAddress string `mapstructure:"contractAddress"`
	ChainId         int64  `mapstructure:"chainId"`
	Confirmations   uint64 `mapstructure:"confirmations"`
	FinalityDepth   uint64 `mapstructure:"finalityDepth"`
	GasLimit        uint64 `mapstructure:"gasLimit"`
	// Signer is "kms" for remote signing or "local" for a KMS-encrypted key.
	Signer              string `mapstructure:"signer"`
	EncryptedPrivateKey string `mapstructure:"encryptedPrivateKey"`
}

type KMSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	KeyId    string `mapstructure:"keyId"`
}

type StoreConfig struct {
	Kind     string         `mapstructure:"kind"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb"`
	Database Database       `mapstructure:"database"`
	// ClaimCacheSize bounds the in-process cache of claimed message keys.
	ClaimCacheSize int `mapstructure:"claimCacheSize"`
}

type DynamoDBConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	TableName string `mapstructure:"tableName"`
}

type LevelDBConfig struct {
	Dir string `mapstructure:"dir"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type QueueConfig struct {
	Kind              string        `mapstructure:"kind"`
	GroupId           string        `mapstructure:"groupId"`
	DedupWindow       time.Duration `mapstructure:"dedupWindow"`
	VisibilityTimeout time.Duration `mapstructure:"visibilityTimeout"`
	WaitTime          time.Duration `mapstructure:"waitTime"`
	SQS               SQSConfig     `mapstructure:"sqs"`
	Redis             RedisConfig   `mapstructure:"redis"`
}

type SQSConfig struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	OutboundUrl string `mapstructure:"outboundUrl"`
	CheckUrl    string `mapstructure:"checkUrl"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	OutboundQueue string `mapstructure:"outboundQueue"`
	CheckQueue    string `mapstructure:"checkQueue"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SenderConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// BookkeepingAttempts bounds local retries of post-submission writes.
	BookkeepingAttempts uint          `mapstructure:"bookkeepingAttempts"`
	CheckDelay          time.Duration `mapstructure:"checkDelay"`
	MaxBackoff          time.Duration `mapstructure:"maxBackoff"`
}

type CheckerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
}

type AlertConfig struct {
	WebhookUrl string        `mapstructure:"webhookUrl"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (cfg *SourceConfig) Validate() error {
	if cfg.GatewayUrl == "" {
		return fmt.Errorf("source gatewayUrl cannot be empty")
	}
	if cfg.CanisterId == "" {
		return fmt.Errorf("source canisterId cannot be empty")
	}

	return nil
}

func (cfg *DestinationConfig) Validate() error {
	switch cfg.Kind {
	case DestinationStarknet:
		return cfg.Starknet.Validate()
	case DestinationEthereum:
		return cfg.Ethereum.Validate()
	default:
		return fmt.Errorf("unsupported destination kind: %q", cfg.Kind)
	}
}

func (cfg *StarknetConfig) Validate() error {
	if cfg.RpcUrl == "" {
		return fmt.Errorf("starknet rpcUrl cannot be empty")
	}
	if cfg.AccountAddress == "" {
		return fmt.Errorf("starknet accountAddress cannot be empty")
	}
	if cfg.ContractAddress == "" {
		return fmt.Errorf("starknet contractAddress cannot be empty")
	}
	if cfg.ChainId == "" {
		return fmt.Errorf("starknet chainId cannot be empty")
	}
	if cfg.EncryptedPrivateKey == "" {
		return fmt.Errorf("starknet encryptedPrivateKey cannot be empty")
	}

	return nil
}

func (cfg *EthereumConfig) Validate() error {
	if cfg.RpcUrl == "" {
		return fmt.Errorf("ethereum rpcUrl cannot be empty")
	}
	if cfg.ContractAddress == "" {
		return fmt.Errorf("ethereum contractAddress cannot be empty")
	}
	if cfg.ChainId == 0 {
		return fmt.Errorf("ethereum chainId cannot be 0")
	}
	if cfg.FinalityDepth < cfg.Confirmations {
		return fmt.Errorf("ethereum finalityDepth must not be less than confirmations")
	}
	switch cfg.Signer {
	case SignerKMS:
	case SignerLocal:
		if cfg.EncryptedPrivateKey == "" {
			return fmt.Errorf("ethereum encryptedPrivateKey cannot be empty for local signer")
		}
	default:
		return fmt.Errorf("unsupported ethereum signer: %q", cfg.Signer)
	}

	return nil
}

func (cfg *StoreConfig) Validate() error {
	switch cfg.Kind {
	case StoreDynamoDB:
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb tableName cannot be empty")
		}
	case StoreLevelDB:
		if cfg.LevelDB.Dir == "" {
			return fmt.Errorf("leveldb dir cannot be empty")
		}
	case StoreMysql:
		if cfg.Database.Host == "" || cfg.Database.DBName == "" {
			return fmt.Errorf("mysql host and dbname cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported store kind: %q", cfg.Kind)
	}

	return nil
}

func (cfg *QueueConfig) Validate() error {
	switch cfg.Kind {
	case QueueSQS:
		if cfg.SQS.OutboundUrl == "" || cfg.SQS.CheckUrl == "" {
			return fmt.Errorf("sqs outboundUrl and checkUrl cannot be empty")
		}
	case QueueRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty")
		}
	case QueueMemory:
	default:
		return fmt.Errorf("unsupported queue kind: %q", cfg.Kind)
	}
	if cfg.GroupId == "" {
		return fmt.Errorf("queue groupId cannot be empty")
	}

	return nil
}

func (cfg *SenderConfig) Validate() error {
	// the nonce counter is read-then-written without a lock
	if cfg.Concurrency != 1 {
		return fmt.Errorf("sender concurrency must be exactly 1, got %d", cfg.Concurrency)
	}
	if cfg.BookkeepingAttempts == 0 {
		return fmt.Errorf("sender bookkeepingAttempts cannot be 0")
	}

	return nil
}

func (cfg *CheckerConfig) Validate() error {
	if cfg.Concurrency < 1 {
		return fmt.Errorf("checker concurrency must be at least 1")
	}

	return nil
}

func (cfg *Config) Validate() error {
	cfg.fillDefaultValueIfNotSet()
	if err := cfg.Source.Validate(); err != nil {
		return err
	}
	if err := cfg.Destination.Validate(); err != nil {
		return err
	}
	if err := cfg.Store.Validate(); err != nil {
		return err
	}
	if err := cfg.Queue.Validate(); err != nil {
		return err
	}
	if err := cfg.Sender.Validate(); err != nil {
		return err
	}
	if err := cfg.Checker.Validate(); err != nil {
		return err
	}

	// every signer path goes through KMS, either to decrypt a key or to sign
	if cfg.KMS.KeyId == "" {
		return fmt.Errorf("kms keyId cannot be empty")
	}

	return nil
}

func (cfg *Config) fillDefaultValueIfNotSet() {
	if cfg.Log.Format == "" {
		cfg.Log.Format = "auto"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = time.Second * 20
	}
	if cfg.Source.IngressExpiry == 0 {
		cfg.Source.IngressExpiry = time.Minute * 5
	}
	if cfg.Destination.Kind == "" {
		cfg.Destination.Kind = DestinationStarknet
	}
	if cfg.Destination.Starknet.EntryPoint == "" {
		cfg.Destination.Starknet.EntryPoint = "consume_message"
	}
	if cfg.Destination.Starknet.MaxFee == "" {
		cfg.Destination.Starknet.MaxFee = "0x0"
	}
	if cfg.Destination.Ethereum.Signer == "" {
		cfg.Destination.Ethereum.Signer = SignerKMS
	}
	if cfg.Destination.Ethereum.Confirmations == 0 {
		cfg.Destination.Ethereum.Confirmations = 1
	}
	if cfg.Destination.Ethereum.FinalityDepth == 0 {
		cfg.Destination.Ethereum.FinalityDepth = 64
	}
	if cfg.Destination.Ethereum.GasLimit == 0 {
		cfg.Destination.Ethereum.GasLimit = 200000
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = StoreDynamoDB
	}
	if cfg.Store.ClaimCacheSize == 0 {
		cfg.Store.ClaimCacheSize = 4096
	}
	if cfg.Queue.Kind == "" {
		cfg.Queue.Kind = QueueSQS
	}
	if cfg.Queue.GroupId == "" {
		cfg.Queue.GroupId = DefaultMessageGroupID
	}
	if cfg.Queue.DedupWindow == 0 {
		cfg.Queue.DedupWindow = time.Minute * 5
	}
	if cfg.Queue.VisibilityTimeout == 0 {
		cfg.Queue.VisibilityTimeout = time.Minute
	}
	if cfg.Queue.WaitTime == 0 {
		cfg.Queue.WaitTime = time.Second * 20
	}
	if cfg.Queue.Redis.OutboundQueue == "" {
		cfg.Queue.Redis.OutboundQueue = "relayer:outbound"
	}
	if cfg.Queue.Redis.CheckQueue == "" {
		cfg.Queue.Redis.CheckQueue = "relayer:check"
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = time.Minute
	}
	if cfg.Sender.Concurrency == 0 {
		cfg.Sender.Concurrency = 1
	}
	if cfg.Sender.BookkeepingAttempts == 0 {
		cfg.Sender.BookkeepingAttempts = 3
	}
	if cfg.Sender.CheckDelay == 0 {
		cfg.Sender.CheckDelay = time.Minute * 15
	}
	if cfg.Sender.MaxBackoff == 0 {
		cfg.Sender.MaxBackoff = time.Minute * 5
	}
	if cfg.Checker.Concurrency == 0 {
		cfg.Checker.Concurrency = 1
	}
	if cfg.Checker.MaxBackoff == 0 {
		cfg.Checker.MaxBackoff = time.Minute * 15
	}
	if cfg.Alert.Timeout == 0 {
		cfg.Alert.Timeout = time.Second * 5
	}
}

func (cfg *Config) CreateLogger(debug bool) (*zap.Logger, error) {
	return NewRootLogger(cfg.Log.Format, debug)
}

// NewConfig returns a fully parsed Config object from a given file directory
func NewConfig(configFile string) (Config, error) {
	if _, err := os.Stat(configFile); err == nil { // the given file exists, parse it
		v := viper.New()
		v.SetConfigFile(configFile)
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, err
		}
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, err
	} else if errors.Is(err, os.ErrNotExist) { // the given config file does not exist, return error
		return Config{}, fmt.Errorf("no config file found at %s", configFile)
	} else { // other errors
		return Config{}, err
	}
}

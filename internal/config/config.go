package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/coldbell/dex/trader/internal/drift"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
	// Rotation applies to file output only.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type ConfirmMode string

const (
	ConfirmWebsocket ConfirmMode = "websocket"
	ConfirmPoll      ConfirmMode = "poll"
)

type TraderConfig struct {
	RPCURL                        string
	WSURL                         string
	Commitment                    rpc.CommitmentType
	ConfirmMode                   ConfirmMode
	ConfirmPollInterval           time.Duration
	KeypairPath                   string
	ProgramID                     solana.PublicKey
	Plan                          []drift.InstructionKind
	Order                         drift.PlaceOrderParams
	Simulate                      bool
	SkipPreflight                 bool
	TxTimeout                     time.Duration
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	Log                           LogConfig
}

const (
	defaultRPCURL      = "https://api.devnet.solana.com"
	localKeypairFile   = "drift-dev-wallet.json"
	defaultInstruction = string(drift.InstructionPlaceOrder)
)

func LoadTraderConfig() (TraderConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return TraderConfig{}, err
	}

	keypairPath := envOrDefault("TRADER_KEYPAIR_PATH", envOrDefault("SOLANA_KEYPAIR_PATH", "~/.config/solana/id.json"))
	keypairPath = maybeUseLocalSecretKeypair(keypairPath)
	expandedKeypair, err := expandHomePath(keypairPath)
	if err != nil {
		return TraderConfig{}, fmt.Errorf("expand keypair path: %w", err)
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return TraderConfig{}, err
	}

	programID, err := envPubkey("DRIFT_PROGRAM_ID", drift.DevnetProgramID)
	if err != nil {
		return TraderConfig{}, err
	}

	plan, err := drift.ParsePlan(parseCSVEnv(envOrDefault("TRADER_INSTRUCTIONS", ""), []string{defaultInstruction}))
	if err != nil {
		return TraderConfig{}, fmt.Errorf("invalid TRADER_INSTRUCTIONS: %w", err)
	}

	order, err := loadOrderParams()
	if err != nil {
		return TraderConfig{}, err
	}

	simulate, err := envBool("TRADER_SIMULATE", true)
	if err != nil {
		return TraderConfig{}, err
	}
	skipPreflight, err := envBool("TRADER_SKIP_PREFLIGHT", false)
	if err != nil {
		return TraderConfig{}, err
	}
	txTimeout, err := envDuration("TRADER_TX_TIMEOUT", 60*time.Second)
	if err != nil {
		return TraderConfig{}, err
	}
	pollInterval, err := envDuration("TRADER_CONFIRM_POLL_INTERVAL", 700*time.Millisecond)
	if err != nil {
		return TraderConfig{}, err
	}
	cuLimit, err := envUint[uint32]("TRADER_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return TraderConfig{}, err
	}
	cuPrice, err := envUint[uint64]("TRADER_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)
	if err != nil {
		return TraderConfig{}, err
	}

	rpcURL := envOrDefault("SOLANA_RPC_URL", defaultRPCURL)
	confirmMode, err := parseConfirmMode(envOrDefault("TRADER_CONFIRM_MODE", string(ConfirmWebsocket)))
	if err != nil {
		return TraderConfig{}, err
	}
	wsURL := envOrDefault("SOLANA_WS_URL", "")
	if confirmMode == ConfirmWebsocket && wsURL == "" {
		wsURL, err = websocketURLFromRPC(rpcURL)
		if err != nil {
			return TraderConfig{}, fmt.Errorf("derive SOLANA_WS_URL from SOLANA_RPC_URL: %w", err)
		}
	}

	logCfg, err := buildLogConfig("TRADER", "trader")
	if err != nil {
		return TraderConfig{}, err
	}

	return TraderConfig{
		RPCURL:                        rpcURL,
		WSURL:                         wsURL,
		Commitment:                    commitment,
		ConfirmMode:                   confirmMode,
		ConfirmPollInterval:           pollInterval,
		KeypairPath:                   expandedKeypair,
		ProgramID:                     programID,
		Plan:                          plan,
		Order:                         order,
		Simulate:                      simulate,
		SkipPreflight:                 skipPreflight,
		TxTimeout:                     txTimeout,
		ComputeUnitLimit:              cuLimit,
		ComputeUnitPriceMicroLamports: cuPrice,
		Log:                           logCfg,
	}, nil
}

func (c TraderConfig) Includes(kind drift.InstructionKind) bool {
	for _, planned := range c.Plan {
		if planned == kind {
			return true
		}
	}
	return false
}

func loadOrderParams() (drift.PlaceOrderParams, error) {
	orderType, err := parseOrderType(envOrDefault("TRADER_ORDER_TYPE", "limit"))
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	direction, err := parseDirection(envOrDefault("TRADER_DIRECTION", "long"))
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	marketIndex, err := envUint[uint16]("TRADER_MARKET_INDEX", 0)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	baseAssetAmount, err := envUint[uint64]("TRADER_BASE_ASSET_AMOUNT", 10_000)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	price, err := envUint[uint64]("TRADER_PRICE", 10_000_000)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	reduceOnly, err := envBool("TRADER_REDUCE_ONLY", false)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	immediateOrCancel, err := envBool("TRADER_IMMEDIATE_OR_CANCEL", false)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	postOnly, err := envBool("TRADER_POST_ONLY", true)
	if err != nil {
		return drift.PlaceOrderParams{}, err
	}
	if postOnly && immediateOrCancel {
		return drift.PlaceOrderParams{}, errors.New("invalid order: TRADER_POST_ONLY and TRADER_IMMEDIATE_OR_CANCEL are mutually exclusive")
	}

	return drift.PlaceOrderParams{
		OrderType:         orderType,
		MarketIndex:       marketIndex,
		Direction:         direction,
		BaseAssetAmount:   baseAssetAmount,
		Price:             price,
		ReduceOnly:        reduceOnly,
		ImmediateOrCancel: immediateOrCancel,
		PostOnly:          postOnly,
	}, nil
}

func parseOrderType(raw string) (drift.OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "market", "0":
		return drift.OrderTypeMarket, nil
	case "limit", "1":
		return drift.OrderTypeLimit, nil
	case "trigger_market", "2":
		return drift.OrderTypeTriggerMarket, nil
	case "trigger_limit", "3":
		return drift.OrderTypeTriggerLimit, nil
	case "oracle", "4":
		return drift.OrderTypeOracle, nil
	default:
		return 0, fmt.Errorf("invalid TRADER_ORDER_TYPE: %q (expected market|limit|trigger_market|trigger_limit|oracle)", raw)
	}
}

func parseDirection(raw string) (drift.PositionDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "0":
		return drift.DirectionLong, nil
	case "short", "1":
		return drift.DirectionShort, nil
	default:
		return 0, fmt.Errorf("invalid TRADER_DIRECTION: %q (expected long|short)", raw)
	}
}

func parseConfirmMode(raw string) (ConfirmMode, error) {
	switch mode := ConfirmMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ConfirmWebsocket, ConfirmPoll:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid TRADER_CONFIRM_MODE: %q (expected websocket|poll)", raw)
	}
}

// websocketURLFromRPC follows the validator convention of serving pubsub on
// the RPC port + 1 when an explicit port is present.
func websocketURLFromRPC(rpcURL string) (string, error) {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	if port := parsed.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid port %q: %w", port, err)
		}
		parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(n+1))
	}
	return parsed.String(), nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) (LogConfig, error) {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join(".docker", serviceName, serviceName+".log")))

	maxSize, err := envNonNegativeInt(prefix+"_LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return LogConfig{}, err
	}
	maxBackups, err := envNonNegativeInt(prefix+"_LOG_MAX_BACKUPS", 5)
	if err != nil {
		return LogConfig{}, err
	}
	maxAge, err := envNonNegativeInt(prefix+"_LOG_MAX_AGE_DAYS", 14)
	if err != nil {
		return LogConfig{}, err
	}
	compress, err := envBool(prefix+"_LOG_COMPRESS", false)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{
		Level:      level,
		Format:     format,
		Output:     output,
		FilePath:   filePath,
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
		Compress:   compress,
	}, nil
}

// envValue parses key with parse, returning fallback when the key is unset.
// Parse errors are reported against the key name.
func envValue[T any](key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	return envValue(key, fallback, solana.PublicKeyFromBase58)
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	return envValue(key, fallback, func(raw string) (rpc.CommitmentType, error) {
		switch commitment := rpc.CommitmentType(strings.ToLower(raw)); commitment {
		case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
			return commitment, nil
		default:
			return "", fmt.Errorf("%q (expected processed|confirmed|finalized)", raw)
		}
	})
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	return envValue(key, fallback, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = errors.New("must be > 0")
		}
		return d, err
	})
}

func envUint[T uint16 | uint32 | uint64](key string, fallback T) (T, error) {
	bits := 64
	switch any(fallback).(type) {
	case uint16:
		bits = 16
	case uint32:
		bits = 32
	}
	return envValue(key, fallback, func(raw string) (T, error) {
		v, err := strconv.ParseUint(raw, 10, bits)
		return T(v), err
	})
}

func envNonNegativeInt(key string, fallback int) (int, error) {
	return envValue(key, fallback, func(raw string) (int, error) {
		v, err := strconv.Atoi(raw)
		if err == nil && v < 0 {
			err = errors.New("must be >= 0")
		}
		return v, err
	})
}

func envBool(key string, fallback bool) (bool, error) {
	return envValue(key, fallback, strconv.ParseBool)
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	if err := flattenConfigValue("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// flattenConfigValue joins nested keys with "_" and renders lists as csv.
func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if prefix != "" {
				segment = prefix + "_" + segment
			}
			if err := flattenConfigValue(segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	if value := strings.TrimSpace(runtimeConfigValues[key]); value != "" {
		return value
	}
	return ""
}

func maybeUseLocalSecretKeypair(current string) string {
	expandedCurrent, err := expandHomePath(current)
	if err != nil {
		return current
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return current
	}
	defaultHomePath := filepath.Join(homeDir, ".config", "solana", "id.json")
	if filepath.Clean(expandedCurrent) != filepath.Clean(defaultHomePath) {
		return current
	}

	for _, candidate := range []string{
		localKeypairFile,
		filepath.Join(".local", "secret", localKeypairFile),
	} {
		absoluteCandidate, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		info, err := os.Stat(absoluteCandidate)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		return absoluteCandidate
	}

	return current
}

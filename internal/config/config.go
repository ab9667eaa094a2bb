// Package config resolves the core's external configuration inputs:
// the CA/CAS server and beacon ports, the max-array-bytes
// clamp that sizes the large-TCP pool, and the interface address list,
// with the CAS-specific variable always preferred over its CA-wide
// fallback as rsrv_init()'s envGetConfigParamPtr chain requires.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultServerPort and DefaultBeaconPort are the CA protocol's
// well-known port numbers, used when neither EPICS_CAS_* nor
// EPICS_CA_* is set.
const (
	DefaultServerPort = 5064
	DefaultBeaconPort = 5065
)

// Config is the resolved, typed view of every external input.
type Config struct {
	// ServerPort is the shared TCP listen / UDP name-search port.
	ServerPort int
	// BeaconPort is the UDP beacon destination port.
	BeaconPort int
	// MaxArrayBytes is the EPICS_CA_MAX_ARRAY_BYTES raw value before
	// the floor/overhead clamp; LargeBufTCPLen (below) is the
	// already-clamped figure the large-TCP pool is sized from.
	MaxArrayBytes  uint32
	LargeBufTCPLen uint32
	// Interfaces is the whitespace-split EPICS_CAS_INTF_ADDR_LIST;
	// empty means "bind INADDR_ANY".
	Interfaces []string

	// ConfigFile, if non-empty, is watched for changes (ambient
	// stack: fsnotify). Interface bindings are acquired once at
	// startup and never rebound (see DESIGN.md), so a change here
	// only logs a restart-required warning.
	ConfigFile string

	// AdminAddr and GRPCAddr are the admin HTTP and gRPC listen
	// addresses; empty disables the respective surface.
	AdminAddr string
	GRPCAddr  string

	// AMQPURL, when set, turns on the event bus's broker fan-out so
	// lifecycle events reach other replicas' subscribers.
	AMQPURL string

	// LogFile, when set, routes logs through a rotating file instead
	// of stderr.
	LogFile string
}

// ProtocolHeaderOverhead is added to the floored max-array-bytes value
// to get rsrvSizeofLargeBufTCP: room for the largest CA wire
// message header around the payload.
const ProtocolHeaderOverhead = 16

// MinLargeBufTCP is the floor rsrvSizeofLargeBufTCP is clamped to
// (MAX_TCP, the small-buffer size — the large pool is never smaller
// than the small one).
const MinLargeBufTCP = 16384

// Load resolves Config from flags and environment variables, in
// viper's usual precedence order (flag > env > default). The file named
// by config_file is recorded in ConfigFile but not read; WatchFile only
// watches it. fs is typically pflag.CommandLine; pass a
// fresh pflag.FlagSet in tests to avoid global flag redefinition
// panics across subtests.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_port", 0)
	v.SetDefault("beacon_port", 0)
	v.SetDefault("max_array_bytes", 0)
	v.SetDefault("intf_addr_list", "")
	v.SetDefault("config_file", "")
	v.SetDefault("admin_addr", "127.0.0.1:5066")
	v.SetDefault("grpc_addr", "127.0.0.1:5067")
	v.SetDefault("amqp_url", "")
	v.SetDefault("log_file", "")

	if fs != nil {
		if fs.Lookup("config") == nil {
			fs.String("config", "", "path to an optional config file")
			fs.String("admin-addr", "127.0.0.1:5066", "admin HTTP listen address (empty disables)")
			fs.String("grpc-addr", "127.0.0.1:5067", "admin gRPC listen address (empty disables)")
			fs.String("amqp-url", "", "AMQP broker URL for lifecycle event fan-out")
			fs.String("log-file", "", "rotating log file path (default: stderr)")
		}
		_ = v.BindPFlag("config_file", fs.Lookup("config"))
		_ = v.BindPFlag("admin_addr", fs.Lookup("admin-addr"))
		_ = v.BindPFlag("grpc_addr", fs.Lookup("grpc-addr"))
		_ = v.BindPFlag("amqp_url", fs.Lookup("amqp-url"))
		_ = v.BindPFlag("log_file", fs.Lookup("log-file"))
	}

	_ = v.BindEnv("admin_addr", "CAS_ADMIN_ADDR")
	_ = v.BindEnv("grpc_addr", "CAS_GRPC_ADDR")
	_ = v.BindEnv("amqp_url", "CAS_AMQP_URL")
	_ = v.BindEnv("log_file", "CAS_LOG_FILE")

	// CAS-specific variables take priority over the CA-wide fallback;
	// viper has no built-in "try A then B" for env vars, so each is
	// bound explicitly and the CAS one wins by being read second.
	serverPort := firstNonZero(
		v.GetInt(bindEnvInt(v, "ca_server_port", "EPICS_CA_SERVER_PORT")),
		v.GetInt(bindEnvInt(v, "cas_server_port", "EPICS_CAS_SERVER_PORT")),
	)
	if serverPort == 0 {
		serverPort = DefaultServerPort
	}

	beaconPort := firstNonZero(
		v.GetInt(bindEnvInt(v, "ca_repeater_port", "EPICS_CA_REPEATER_PORT")),
		v.GetInt(bindEnvInt(v, "cas_beacon_port", "EPICS_CAS_BEACON_PORT")),
	)
	if beaconPort == 0 {
		beaconPort = DefaultBeaconPort
	}

	_ = v.BindEnv("max_array_bytes", "EPICS_CA_MAX_ARRAY_BYTES")
	_ = v.BindEnv("intf_addr_list", "EPICS_CAS_INTF_ADDR_LIST")

	maxArrayBytes := uint32(v.GetUint64("max_array_bytes"))
	large := maxArrayBytes
	if large < MinLargeBufTCP {
		large = MinLargeBufTCP
	}
	large += ProtocolHeaderOverhead

	var ifaces []string
	if raw := v.GetString("intf_addr_list"); strings.TrimSpace(raw) != "" {
		ifaces = strings.Fields(raw)
	}

	cfg := &Config{
		ServerPort:     serverPort,
		BeaconPort:     beaconPort,
		MaxArrayBytes:  maxArrayBytes,
		LargeBufTCPLen: large,
		Interfaces:     ifaces,
		ConfigFile:     v.GetString("config_file"),
		AdminAddr:      v.GetString("admin_addr"),
		GRPCAddr:       v.GetString("grpc_addr"),
		AMQPURL:        v.GetString("amqp_url"),
		LogFile:        v.GetString("log_file"),
	}
	return cfg, nil
}

// bindEnvInt binds key to envVar and returns key, for use inline with
// viper.GetInt so each priority candidate can be read in one
// expression.
func bindEnvInt(v *viper.Viper, key, envVar string) string {
	_ = v.BindEnv(key, envVar)
	return key
}

func firstNonZero(ca, cas int) int {
	if cas != 0 {
		return cas
	}
	return ca
}

// WatchFile installs an fsnotify watch on cfg.ConfigFile (if set) and
// logs a warning on change. Interface bindings are acquired once in
// the interface binder and never rebound at runtime, so this
// is advisory only — it never causes a re-bind.
func WatchFile(log *slog.Logger, cfg *Config) (io interface{ Close() error }, err error) {
	if cfg.ConfigFile == "" {
		return nopCloser{}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: fsnotify watcher: %w", err)
	}
	if err := w.Add(cfg.ConfigFile); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %q: %w", cfg.ConfigFile, err)
	}
	if log == nil {
		log = slog.Default()
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.Warn("CAS: config file changed on disk, restart required to apply (interface bindings are not rebound at runtime)", "file", cfg.ConfigFile)
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("CAS: config watcher error", "error", werr)
			}
		}
	}()
	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

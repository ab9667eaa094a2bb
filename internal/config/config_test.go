package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerPort != DefaultServerPort {
		t.Fatalf("expected default server port %d, got %d", DefaultServerPort, cfg.ServerPort)
	}
	if cfg.BeaconPort != DefaultBeaconPort {
		t.Fatalf("expected default beacon port %d, got %d", DefaultBeaconPort, cfg.BeaconPort)
	}
	if cfg.LargeBufTCPLen != MinLargeBufTCP+ProtocolHeaderOverhead {
		t.Fatalf("expected large-buf floor applied, got %d", cfg.LargeBufTCPLen)
	}
	if len(cfg.Interfaces) != 0 {
		t.Fatalf("expected empty interface list to mean ANY, got %v", cfg.Interfaces)
	}
}

func TestLoadPrefersCASOverCAVars(t *testing.T) {
	withEnv(t, map[string]string{
		"EPICS_CA_SERVER_PORT":   "6000",
		"EPICS_CAS_SERVER_PORT":  "6001",
		"EPICS_CA_REPEATER_PORT": "7000",
		"EPICS_CAS_BEACON_PORT":  "7001",
	})
	cfg, err := Load(pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerPort != 6001 {
		t.Fatalf("expected CAS server port to win, got %d", cfg.ServerPort)
	}
	if cfg.BeaconPort != 7001 {
		t.Fatalf("expected CAS beacon port to win, got %d", cfg.BeaconPort)
	}
}

func TestLoadFallsBackToCAVars(t *testing.T) {
	withEnv(t, map[string]string{
		"EPICS_CA_SERVER_PORT": "6000",
	})
	cfg, err := Load(pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerPort != 6000 {
		t.Fatalf("expected CA fallback port, got %d", cfg.ServerPort)
	}
}

func TestLoadClampsMaxArrayBytes(t *testing.T) {
	withEnv(t, map[string]string{"EPICS_CA_MAX_ARRAY_BYTES": "100"})
	cfg, err := Load(pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LargeBufTCPLen != MinLargeBufTCP+ProtocolHeaderOverhead {
		t.Fatalf("expected small max_array_bytes to be floored, got %d", cfg.LargeBufTCPLen)
	}
}

func TestLoadParsesInterfaceList(t *testing.T) {
	withEnv(t, map[string]string{"EPICS_CAS_INTF_ADDR_LIST": "192.0.2.10 192.0.2.11"})
	cfg, err := Load(pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Interfaces) != 2 || cfg.Interfaces[0] != "192.0.2.10" || cfg.Interfaces[1] != "192.0.2.11" {
		t.Fatalf("unexpected interface list: %v", cfg.Interfaces)
	}
}

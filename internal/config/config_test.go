package config

import "testing"

func TestLoadMainServerDefaults(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	cfg, err := LoadMainServer()
	if err != nil {
		t.Fatalf("LoadMainServer: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Fatalf("Port() = %d, want 9000", cfg.Port())
	}
	if !cfg.EncryptMode() || !cfg.CompressMode() {
		t.Fatalf("EncryptMode/CompressMode = %v/%v, want true/true", cfg.EncryptMode(), cfg.CompressMode())
	}
	if cfg.SessionLimitCount() != 0 {
		t.Fatalf("SessionLimitCount() = %d, want 0 (unlimited)", cfg.SessionLimitCount())
	}
}

func TestLoadMainServerMissingConnectionKey(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "")
	if _, err := LoadMainServer(); err == nil {
		t.Fatalf("LoadMainServer() with no CONNECTION_KEY should fail")
	}
}

func TestLoadMainServerBadPort(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	t.Setenv("MAIN_SERVER_PORT", "99999")
	if _, err := LoadMainServer(); err == nil {
		t.Fatalf("LoadMainServer() with an out-of-range port should fail")
	}
}

func TestLoadMainServerBadIntValue(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	t.Setenv("HIGH_PRIORITY_COUNT", "not-a-number")
	if _, err := LoadMainServer(); err == nil {
		t.Fatalf("LoadMainServer() with a non-numeric count should fail")
	}
}

func TestLoadMiddleServerOverrides(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	t.Setenv("MIDDLE_SERVER_PORT", "9200")
	t.Setenv("MAIN_SERVER_IP", "10.0.0.5")
	t.Setenv("MAIN_SERVER_PORT", "9001")

	cfg, err := LoadMiddleServer()
	if err != nil {
		t.Fatalf("LoadMiddleServer: %v", err)
	}
	if cfg.Port() != 9200 || cfg.MainServerIP() != "10.0.0.5" || cfg.MainServerPort() != 9001 {
		t.Fatalf("cfg = %+v, want port=9200 ip=10.0.0.5 mainPort=9001", cfg)
	}
}

func TestLoadRestGatewayDefaults(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	cfg, err := LoadRestGateway()
	if err != nil {
		t.Fatalf("LoadRestGateway: %v", err)
	}
	if cfg.RestPort() != 8080 {
		t.Fatalf("RestPort() = %d, want 8080", cfg.RestPort())
	}
}

func TestLoadSampleDriverDefaults(t *testing.T) {
	t.Setenv("CONNECTION_KEY", "k")
	cfg, err := LoadSampleDriver()
	if err != nil {
		t.Fatalf("LoadSampleDriver: %v", err)
	}
	if cfg.SourceFolder() != "." || cfg.TargetFolder() != "." {
		t.Fatalf("folders = %q/%q, want ./.", cfg.SourceFolder(), cfg.TargetFolder())
	}
}

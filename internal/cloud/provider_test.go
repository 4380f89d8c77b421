package cloud

import "testing"

func TestResolveProviderFillsMinIODefaults(t *testing.T) {
	cfg := &Config{Provider: "minio"}
	resolveProvider(cfg)

	if cfg.Endpoint != "http://localhost:9000" {
		t.Errorf("Endpoint = %q, want http://localhost:9000", cfg.Endpoint)
	}
	if !cfg.PathStyle {
		t.Error("PathStyle = false, want true for minio")
	}
}

func TestResolveProviderPreservesExplicitEndpoint(t *testing.T) {
	cfg := &Config{Provider: "minio", Endpoint: "http://custom:9001"}
	resolveProvider(cfg)

	if cfg.Endpoint != "http://custom:9001" {
		t.Errorf("Endpoint = %q, want explicit endpoint preserved", cfg.Endpoint)
	}
}

func TestResolveProviderLeavesAWSPathStyleFalse(t *testing.T) {
	cfg := &Config{Provider: "s3"}
	resolveProvider(cfg)

	if cfg.PathStyle {
		t.Error("PathStyle = true, want false for plain s3 provider")
	}
	if cfg.Endpoint != "" {
		t.Errorf("Endpoint = %q, want empty so AWS derives it from region", cfg.Endpoint)
	}
}

func TestResolveProviderUnknownProviderIsNoop(t *testing.T) {
	cfg := &Config{Provider: "totally-unknown", Endpoint: "http://keep-me:1234"}
	resolveProvider(cfg)

	if cfg.Endpoint != "http://keep-me:1234" {
		t.Errorf("Endpoint = %q, want untouched for unknown provider", cfg.Endpoint)
	}
}

func TestResolveProviderIsCaseInsensitive(t *testing.T) {
	cfg := &Config{Provider: "MinIO"}
	resolveProvider(cfg)

	if !cfg.PathStyle {
		t.Error("PathStyle = false, want true regardless of provider name casing")
	}
}

func TestContentTypeForExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"backup.sql", "text/plain"},
		{"backup.dump", "application/octet-stream"},
		{"backup.tar", "application/x-tar"},
		{"backup.tar.gz", "application/gzip"},
		{"_backup_meta.json", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentTypeForExtension(tt.name)
			if got != tt.want {
				t.Errorf("contentTypeForExtension(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

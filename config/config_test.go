package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.NavigateTimeout != 30*time.Second || cfg.Render.SettleDelay != 500*time.Millisecond {
		t.Errorf("render 超时 = %v/%v", cfg.Render.NavigateTimeout, cfg.Render.SettleDelay)
	}
	if cfg.Capture.MaxAttempts != 3 || cfg.Capture.MaxBackoff != 5*time.Second {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Render.DiagramViewport.Width != 1200 || cfg.Render.MarkupViewport.Height != 1200 {
		t.Errorf("viewport = %+v %+v", cfg.Render.DiagramViewport, cfg.Render.MarkupViewport)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, c Config)
	}{
		{
			name:    "部分覆盖保留默认值",
			content: "server:\n  addr: \":8080\"\ncapture:\n  max_attempts: 5\n",
			check: func(t *testing.T, c Config) {
				if c.Server.Addr != ":8080" || c.Capture.MaxAttempts != 5 {
					t.Errorf("覆盖失败: %+v %+v", c.Server, c.Capture)
				}
				if c.Capture.BaseBackoff != time.Second || c.Render.PoolSize != 2 {
					t.Errorf("默认值丢失: %+v %+v", c.Capture, c.Render)
				}
			},
		},
		{
			name:    "YAML 格式错误",
			content: "server: [",
			wantErr: true,
		},
		{
			name:    "重试次数为零",
			content: "capture:\n  max_attempts: 0\n",
			wantErr: true,
		},
		{
			name:    "退避上限小于起始值",
			content: "capture:\n  base_backoff: 5s\n  max_backoff: 1s\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("显式指定的文件不存在时应返回错误")
	}
}

func TestRenderOptions(t *testing.T) {
	cfg := Default()
	cfg.Render.Padding = 12
	cfg.Render.ChromePath = "/usr/bin/chromium"

	rc, ts := cfg.RenderOptions()
	if rc.ExecPath != "/usr/bin/chromium" || rc.PoolSize != 2 {
		t.Errorf("render.Config = %+v", rc)
	}
	if ts.Diagram.Padding != 12 || ts.Markup.Inset != 40 {
		t.Errorf("targets = %+v", ts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

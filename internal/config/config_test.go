package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: yutai\n"))
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if cfg.Scraper.Preset != "normal" || cfg.Scraper.Workers != 4 || cfg.Scraper.Delay != 3*time.Second || cfg.Scraper.MaxRetries != 3 {
		t.Fatalf("默认应使用 normal 预设: %+v", cfg.Scraper)
	}
	if len(cfg.Metrics.RSIPeriods) != 2 || cfg.Metrics.RSIPeriods[0] != 14 || cfg.Metrics.RSIPeriods[1] != 28 {
		t.Fatalf("默认 RSI 周期不正确: %v", cfg.Metrics.RSIPeriods)
	}
	if cfg.Normalizer.MaxValue != 100000 || cfg.Normalizer.DefaultMonth != 3 {
		t.Fatalf("默认归一化参数不正确: %+v", cfg.Normalizer)
	}
	if cfg.Scraper.CheckpointEvery != 10 {
		t.Fatalf("默认检查点间隔应为 10: %d", cfg.Scraper.CheckpointEvery)
	}
}

func TestPresetOverriddenByExplicitValues(t *testing.T) {
	path := writeConfig(t, "scraper:\n  preset: conservative\n  workers: 3\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scraper.Workers != 3 {
		t.Fatalf("显式 workers 应覆盖预设: %d", cfg.Scraper.Workers)
	}
	if cfg.Scraper.Delay != 6*time.Second || cfg.Scraper.MaxRetries != 5 {
		t.Fatalf("未设置的字段应来自 conservative 预设: %+v", cfg.Scraper)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YUTAI_SCRAPER_DELAY", "500ms")
	t.Setenv("YUTAI_METRICS_RSI_PERIODS", "7,21")
	t.Setenv("YUTAI_DATABASE_DSN", "postgres://localhost/yutai")

	cfg, err := Load(writeConfig(t, "scraper:\n  preset: fast\n"))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scraper.Delay != 500*time.Millisecond {
		t.Fatalf("环境变量应覆盖 delay: %s", cfg.Scraper.Delay)
	}
	if cfg.Scraper.Workers != 8 {
		t.Fatalf("workers 应来自 fast 预设: %d", cfg.Scraper.Workers)
	}
	if len(cfg.Metrics.RSIPeriods) != 2 || cfg.Metrics.RSIPeriods[0] != 7 {
		t.Fatalf("环境变量应覆盖 RSI 周期: %v", cfg.Metrics.RSIPeriods)
	}
	if cfg.Database.DSN != "postgres://localhost/yutai" {
		t.Fatalf("DSN 未从环境变量读取: %q", cfg.Database.DSN)
	}
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("YUTAI_SCRAPER_WORKERS=6\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("YUTAI_SCRAPER_WORKERS") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scraper.Workers != 6 {
		t.Fatalf(".env 中的值应生效: %d", cfg.Scraper.Workers)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown preset":  "scraper:\n  preset: reckless\n",
		"unknown session": "scraper:\n  session: carrier-pigeon\n",
		"negative delay":  "scraper:\n  delay: -1s\n",
		"bad month":       "normalizer:\n  default_month: 13\n",
		"bad range":       "universe:\n  from: 9000\n  to: 1000\n",
		"bad job":         "scheduler:\n  jobs: [scrape, dance]\n",
		"negative cap":    "normalizer:\n  value_caps:\n    food: -1\n",
		"telegram token":  "alerting:\n  telegram:\n    enabled: true\n    chat_id: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("非法配置应被拒绝: %s", strings.TrimSpace(body))
			}
		})
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyPreset("fast"); err != nil {
		t.Fatalf("应用预设失败: %v", err)
	}
	if cfg.Scraper.Workers != 8 || cfg.Scraper.MaxRetries != 2 {
		t.Fatalf("fast 预设未生效: %+v", cfg.Scraper)
	}
	if err := cfg.ApplyPreset("slowest"); err == nil {
		t.Fatal("未知预设应报错")
	}
}

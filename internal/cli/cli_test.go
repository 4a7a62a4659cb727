package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"yutai-ranker/internal/config"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	return cfg
}

func TestPoolFlagsLayering(t *testing.T) {
	cfg := loadConfig(t)
	var f poolFlags
	cmd := &cobra.Command{Use: "test"}
	addPoolFlags(cmd, &f)
	if err := cmd.ParseFlags([]string{"--preset", "conservative", "--workers", "3"}); err != nil {
		t.Fatalf("解析参数失败: %v", err)
	}
	if err := f.apply(cmd, cfg); err != nil {
		t.Fatalf("应用参数失败: %v", err)
	}
	if cfg.Scraper.Workers != 3 {
		t.Fatalf("显式 --workers 应覆盖预设, 实际 %d", cfg.Scraper.Workers)
	}
	if cfg.Scraper.Delay != 6*time.Second || cfg.Scraper.MaxRetries != 5 {
		t.Fatalf("其余参数应来自预设: %+v", cfg.Scraper)
	}
}

func TestPoolFlagsRejectInvalid(t *testing.T) {
	cfg := loadConfig(t)
	var f poolFlags
	cmd := &cobra.Command{Use: "test"}
	addPoolFlags(cmd, &f)
	if err := cmd.ParseFlags([]string{"--workers", "0"}); err != nil {
		t.Fatalf("解析参数失败: %v", err)
	}
	if err := f.apply(cmd, cfg); err == nil {
		t.Fatal("workers=0 应被拒绝")
	}

	cmd = &cobra.Command{Use: "test"}
	addPoolFlags(cmd, &f)
	_ = cmd.ParseFlags([]string{"--preset", "reckless"})
	if err := f.apply(cmd, loadConfig(t)); err == nil {
		t.Fatal("未知预设应被拒绝")
	}
}

func TestParseCodes(t *testing.T) {
	codes, err := parseCodes([]string{"7203", "1301,extra", "7203", "# comment"})
	if err != nil {
		t.Fatalf("解析代码失败: %v", err)
	}
	if len(codes) != 2 || codes[0] != "1301" || codes[1] != "7203" {
		t.Fatalf("代码应去重并排序: %v", codes)
	}

	if codes, err := parseCodes(nil); err != nil || codes != nil {
		t.Fatalf("无参数时应返回 nil: %v %v", codes, err)
	}
	if _, err := parseCodes([]string{"# only"}); err == nil {
		t.Fatal("没有有效代码时应报错")
	}
}

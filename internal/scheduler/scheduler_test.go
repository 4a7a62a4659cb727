package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}
	now := time.Date(2026, 3, 2, 10, 17, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一次应为整点, 实际 %s", got)
	}
}

func TestNextTickCron(t *testing.T) {
	s, err := New(Options{Cron: "30 6 * * 1-5"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("解析 cron 失败: %v", err)
	}
	// 2026-03-06 is a Friday
	now := time.Date(2026, 3, 6, 7, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 9, 6, 30, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("cron 下一次应为 %s, 实际 %s", want, got)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("缺少间隔时应报错")
	}
	if _, err := New(Options{Cron: "not a cron"}, zerolog.Nop()); err == nil {
		t.Fatal("非法 cron 应报错")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 4)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, at time.Time) error {
			select {
			case ticks <- at:
			default:
			}
			return nil
		})
	}()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未触发")
	}
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后调度器未退出")
	}
}

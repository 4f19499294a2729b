package xconf

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Poller 按计划周期性地重载配置，适用于没有推送通知的来源
// （如挂载卷上 fsnotify 不可靠的文件、不允许 watch 的 ConfigMap）。
type Poller struct {
	cron *cron.Cron
}

// Poll 按 cron 表达式 spec 周期性调用 cfg.Reload，结果通过 callback（可为 nil）报告。
//
// spec 支持标准五段表达式和 "@every 30s" 等描述符。
// 上一次重载未完成时跳过本次调度。只接受支持 Reload 的来源（文件、etcd、ConfigMap、Redis）。
//
//	p, err := xconf.Poll(cfg, "@every 30s", nil)
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
func Poll(cfg Config, spec string, callback WatchCallback) (*Poller, error) {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return nil, ErrUnsupportedConfig
	}
	if kc.kind == sourceBytes {
		return nil, ErrNotReloadable
	}
	if spec == "" {
		return nil, ErrEmptySchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		err := kc.Reload()
		if callback != nil {
			callback(cfg, err)
		}
	}); err != nil {
		return nil, fmt.Errorf("xconf: invalid poll schedule %q: %w", spec, err)
	}
	c.Start()
	return &Poller{cron: c}, nil
}

// Stop 停止调度并等待进行中的重载完成。
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

// StopContext 停止调度，返回在进行中的重载完成后关闭的 context。
func (p *Poller) StopContext() context.Context {
	return p.cron.Stop()
}

package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"linkguard/pkg/logx"
)

// Trigger fires fn every interval until the returned disarm func is called.
type Trigger interface {
	Arm(every time.Duration, fn func()) (disarm func(), err error)
}

// CronTrigger schedules ticks on a robfig/cron instance.
type CronTrigger struct {
	mu      sync.Mutex
	c       *cron.Cron
	started bool
}

func NewCronTrigger(log logx.Logger) *CronTrigger {
	cl := cronLogger{log: log.With(logx.String("comp", "cron"))}
	return &CronTrigger{
		c: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
	}
}

func (t *CronTrigger) Arm(every time.Duration, fn func()) (func(), error) {
	if every < time.Second {
		return nil, fmt.Errorf("trigger interval too short: %s", every)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.c.Start()
		t.started = true
	}
	id := t.c.Schedule(cron.Every(every), cron.FuncJob(fn))
	var once sync.Once
	return func() { once.Do(func() { t.c.Remove(id) }) }, nil
}

// Stop halts the cron loop and waits for running ticks until ctx is done.
func (t *CronTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	done := t.c.Stop()
	t.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger bridges cron.Logger to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

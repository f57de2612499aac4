package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/store"
)

// controlPoller periodically reads operator commands (pause/resume/stop/
// insert-priority) from the Store and applies them to a running
// campaign. Idempotent by (action, parameters) hash via Store's debounce
// map, so a command re-read after a restart or a slow poll cycle is
// applied at most once within the debounce window.
type controlPoller struct {
	st   *store.Store
	cfg  config.ControlConfig
	orch *Orchestrator
}

func newControlPoller(st *store.Store, cfg config.ControlConfig, orch *Orchestrator) *controlPoller {
	return &controlPoller{st: st, cfg: cfg, orch: orch}
}

func (p *controlPoller) run(ctx context.Context) {
	if !p.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(p.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *controlPoller) poll(ctx context.Context) {
	commands, err := p.st.ReadControlCommands(ctx)
	if err != nil {
		logger.Warn("orchestrator: control poll failed", "error", err.Error())
		return
	}
	for _, cmd := range commands {
		if p.st.DebounceSeen(commandHash(cmd), p.cfg.Debounce()) {
			continue
		}
		p.apply(cmd)
	}
}

func (p *controlPoller) apply(cmd domain.ControlCommand) {
	switch cmd.Action {
	case domain.ActionPause:
		p.orch.pause()
	case domain.ActionResume:
		p.orch.resume()
	case domain.ActionStop:
		p.orch.stop()
	case domain.ActionInsertPriority:
		companyName := cmd.Parameters["company"]
		if companyName != "" {
			p.orch.insertPriority(domain.Company{Name: companyName})
		}
	default:
		logger.Warn("orchestrator: unknown control action", "action", string(cmd.Action))
	}
}

// commandHash is deterministic over the action and sorted parameters so
// the same logical command always hashes identically regardless of map
// iteration order.
func commandHash(cmd domain.ControlCommand) string {
	keys := make([]string, 0, len(cmd.Parameters))
	for k := range cmd.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(cmd.Action))
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, cmd.Parameters[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

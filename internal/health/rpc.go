package health

import (
	"context"
	"sort"
	"sync"
)

// Pinger is a ledger connection that can be health-checked. *chain.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// pingAll pings every ledger concurrently and reports ok/fail per rpc_<name> key.
func pingAll(ctx context.Context, rpcs map[string]Pinger) (map[string]string, bool) {
	names := make([]string, 0, len(rpcs))
	for name := range rpcs {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		out     = make(map[string]string, len(names))
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			status := "ok"
			if err := p.Ping(ctx); err != nil {
				status = "fail"
			}
			mu.Lock()
			out["rpc_"+name] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
		}(name, rpcs[name])
	}
	wg.Wait()
	return out, healthy
}

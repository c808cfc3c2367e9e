package executor

import (
	"sync"
	"time"

	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/util/ratelimiter"
)

// capacityGuard stops dispatch once free space drops under the floor.
// Between live probes it subtracts the bytes admitted since the last reading.
type capacityGuard struct {
	space   port.SpaceProbe
	dir     string
	floor   uint64
	limiter *ratelimiter.Limiter

	mu       sync.Mutex
	lastFree uint64
	admitted uint64
}

func newCapacityGuard(space port.SpaceProbe, dir string, floor uint64, interval time.Duration, now func() time.Time) *capacityGuard {
	return &capacityGuard{
		space:   space,
		dir:     dir,
		floor:   floor,
		limiter: ratelimiter.NewWithClock(interval, now),
	}
}

// Preflight always probes and checks that required bytes fit above the floor
func (g *capacityGuard) Preflight(required uint64) (port.SpaceCheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.limiter.Reset()
	free, err := g.read()
	if err != nil {
		return port.SpaceCheckResult{}, err
	}
	return port.SpaceCheckResult{
		HasSpace:  free >= g.floor && free-g.floor >= required,
		FreeBytes: free,
		Floor:     g.floor,
		Required:  required,
		Checked:   true,
	}, nil
}

// Admit checks the floor before one dispatch and reserves size on success
func (g *capacityGuard) Admit(size uint64) (port.SpaceCheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := port.SpaceCheckResult{Floor: g.floor, Required: size}

	if ok, _ := g.limiter.Allow(); ok {
		free, err := g.read()
		if err != nil {
			return res, err
		}
		res.FreeBytes = free
		res.Checked = true
	} else if g.admitted < g.lastFree {
		res.FreeBytes = g.lastFree - g.admitted
	}

	res.HasSpace = res.FreeBytes >= g.floor
	if res.HasSpace {
		g.admitted += size
	}
	return res, nil
}

func (g *capacityGuard) read() (uint64, error) {
	free, err := g.space.FreeBytes(g.dir)
	if err != nil {
		return 0, err
	}
	g.lastFree = free
	g.admitted = 0
	return free, nil
}

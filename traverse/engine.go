package traverse

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/log"
	"github.com/mravery/gobvh/scene"
)

// Engine drives closest-hit and any-hit ray batches against a compiled
// scene, dispatching to whichever of the three BLAS layouts the scene was
// built with (spec section 4.7).
type Engine struct {
	scene     *scene.Scene
	stackSize int
	logger    log.Logger
}

// New builds an Engine for sc. stackSize bounds each worker's traversal
// stack depth (spec section 5); pass 0 to use bvh.DefaultConfig's
// convention for the scene's node layout (32 for binary/QBVH, 64 for
// CWBVH).
func New(sc *scene.Scene, stackSize int) *Engine {
	if stackSize <= 0 {
		stackSize = bvh.DefaultConfig(sc.Type).StackSize
	}
	return &Engine{scene: sc, stackSize: stackSize, logger: log.New("traverse")}
}

func (e *Engine) traceOne(ray geometry.Ray, tMax float32, anyHit bool, st *stack) geometry.RayHit {
	var hit geometry.RayHit
	var ok bool
	switch e.scene.Type {
	case bvh.QBVH4:
		hit, ok = traceRayQBVH(e.scene, ray, tMax, anyHit, st)
	case bvh.CWBVH8:
		hit, ok = traceRayCWBVH(e.scene, ray, tMax, anyHit, st)
	default:
		hit, ok = traceRayBinary(e.scene, ray, tMax, anyHit, st)
	}
	if !ok {
		warnStackOverflow(e.logger, e.stackSize)
		return geometry.Miss()
	}
	return hit
}

// TraceClosest fills hits[i] with the closest intersection of rays[i]
// against the scene, running the parallel-threads worker pool from spec
// section 5 when workers > 1 and the single-threaded cooperative loop
// otherwise. len(rays) must equal len(hits).
func (e *Engine) TraceClosest(rays []geometry.Ray, hits []geometry.RayHit, workers int) {
	e.run(len(rays), workers, func(st *stack, i int) {
		hits[i] = e.traceOne(rays[i], float32(math.Inf(1)), false, st)
	})
}

// TraceAny fills hitFlags[i] with whether rays[i] intersects anything in
// the scene within maxDist[i]. len(rays), len(maxDist) and len(hitFlags)
// must all agree.
func (e *Engine) TraceAny(rays []geometry.Ray, maxDist []float32, hitFlags []bool, workers int) {
	e.run(len(rays), workers, func(st *stack, i int) {
		hit := e.traceOne(rays[i], maxDist[i], true, st)
		hitFlags[i] = hit.IsHit() && hit.T <= maxDist[i]
	})
}

// run implements the two scheduling modes from spec section 5: a fixed pool
// of goroutines pulling ray indices off a shared atomic cursor
// (rays_retired in the spec's terms), or, when workers <= 1, a single
// cooperative loop over one traversal stack. The worker-pool shape is
// grounded on the teacher's goroutine-plus-channel fan-out in
// asset/compiler/bvh/bvh_builder.go, generalized from "one goroutine per
// split candidate, fan in over a channel" to "N long-lived goroutines
// draining a shared cursor, each writing directly into its own output
// slot" -- there is nothing to fan in, since each ray's result slot is
// exclusively owned by the worker that claimed that ray.
func (e *Engine) run(n, workers int, do func(st *stack, i int)) {
	if n == 0 {
		return
	}
	start := time.Now()

	if workers <= 1 {
		st := newStack(e.stackSize)
		for i := 0; i < n; i++ {
			do(st, i)
		}
		e.logger.Debugf("trace: %s, rays=%d workers=1 (cooperative)", time.Since(start), n)
		return
	}

	var cursor int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			st := newStack(e.stackSize)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				do(st, i)
			}
		}()
	}
	wg.Wait()
	e.logger.Debugf("trace: %s, rays=%d workers=%d", time.Since(start), n, workers)
}

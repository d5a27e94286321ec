package sim

import (
	"fmt"
	"math/rand"

	"mapchat/internal/routegen"
)

// MaxJitterDeg bounds the cosmetic positional jitter applied per tick.
// Small enough that agents never read as off-route.
const MaxJitterDeg = 0.00001

// Agent is a simulated driver traversing a route. Direction is +1 or -1;
// Outbound tracks which half of the loop the agent is on.
type Agent struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	VenueID   string  `json:"venueId"`
	Index     int     `json:"index"`
	Direction int     `json:"direction"`
	Outbound  bool    `json:"outbound"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// State is an immutable per-tick snapshot of the whole simulation.
// Advance never mutates its input; the serving layer hands snapshots out
// without copying.
type State struct {
	Agents []Agent
	Tick   uint64
}

// driverNames is the fixed label pool. Labels are assigned by
// (route index, agent slot), so the same venue ordering always yields the
// same names.
var driverNames = []string{
	"Marcus", "Elena", "DeShawn", "Priya",
	"Carlos", "Naomi", "Victor", "Amara",
	"Jonas", "Sofia", "Andre", "Talia",
	"Rashid", "Ivy", "Mateo", "Lena",
}

// Spawn creates the initial agent population: 1-2 agents per route, each
// starting somewhere in the first half of its route so all begin outbound.
// Only the count and starting index are random; identity and labels are
// deterministic per (route index, slot).
func Spawn(routes []*routegen.Route, rng *rand.Rand) State {
	var agents []Agent
	for ri, rt := range routes {
		if rt.Len() == 0 {
			continue
		}
		count := 1 + rng.Intn(2)
		for slot := 0; slot < count; slot++ {
			half := rt.Len() / 2
			if half < 1 {
				half = 1
			}
			idx := rng.Intn(half)
			wp := rt.Waypoints[idx]
			agents = append(agents, Agent{
				ID:        fmt.Sprintf("%s:%d", rt.VenueID, slot),
				Label:     driverNames[(ri*2+slot)%len(driverNames)],
				VenueID:   rt.VenueID,
				Index:     idx,
				Direction: 1,
				Outbound:  true,
				Lat:       wp.Lat,
				Lng:       wp.Lng,
			})
		}
	}
	return State{Agents: agents}
}

// Advance computes the next simulation state. Agents whose route vanished
// (the venue set changed underneath them) are dropped silently. Index
// bounds are enforced by clamping, never by error.
func Advance(state State, routes map[string]*routegen.Route, rng *rand.Rand) State {
	next := State{
		Agents: make([]Agent, 0, len(state.Agents)),
		Tick:   state.Tick + 1,
	}
	for _, a := range state.Agents {
		rt, ok := routes[a.VenueID]
		if !ok || rt.Len() == 0 {
			continue
		}
		next.Agents = append(next.Agents, advanceAgent(a, rt, rng))
	}
	return next
}

func advanceAgent(a Agent, rt *routegen.Route, rng *rand.Rand) Agent {
	last := rt.Len() - 1
	if a.Index > last {
		a.Index = last
	}
	if a.Direction != 1 && a.Direction != -1 {
		a.Direction = 1
	}

	moved := a.Direction
	idx := a.Index + moved

	// Endpoint bounces flip direction on the same tick they are reached.
	if idx >= last {
		idx = last
		a.Direction = -1
		a.Outbound = false
	} else if idx <= 0 {
		idx = 0
		a.Direction = 1
		a.Outbound = true
	}

	// Crossing the loop midpoint while still moving in the outbound
	// direction is the outbound->inbound transition, distinct from the
	// endpoint bounce above.
	if moved > 0 && idx == rt.Midpoint() {
		a.Outbound = false
	}

	wp := rt.Waypoints[idx]
	a.Index = idx
	a.Lat = wp.Lat + (rng.Float64()*2-1)*MaxJitterDeg
	a.Lng = wp.Lng + (rng.Float64()*2-1)*MaxJitterDeg
	return a
}

package behaviors

import (
	"math/rand"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

// Rebuilder returns a snapshot import hook that restores the stock behaviors
// by agent kind. Avatars belong to disconnected sessions and are dropped,
// together with their cameras.
func Rebuilder(t tuning.Tuning) func(snapshot.AgentV1) *world.Agent {
	rng := rand.New(rand.NewSource(t.Population.Seed))
	return func(av snapshot.AgentV1) *world.Agent {
		switch {
		case av.Kind == KindAvatar, av.Camera:
			return nil
		case av.Kind == KindWanderer:
			a := &world.Agent{Behavior: Wander(rand.New(rand.NewSource(rng.Int63())), t.Population.Speed)}
			if av.Pointer {
				Draggable(a)
			}
			return a
		}
		return &world.Agent{}
	}
}

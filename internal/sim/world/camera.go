package world

import "agentworld.ai/internal/sim/geom"

const KindCamera = "camera"

// NewCamera builds a camera viewport of the given size centred on owner.
// It is not registered; callers add it like any other agent.
func NewCamera(owner *Agent, size geom.Vec) *Agent {
	c := &Agent{
		Kind:     KindCamera,
		Camera:   true,
		Owner:    owner,
		Behavior: FollowOwner,
	}
	c.Rect.Size = size
	if owner != nil {
		c.Rect.Center = owner.Position()
	}
	return c
}

// FollowOwner re-centres a camera on its owner.
func FollowOwner(c *Agent) {
	if c.Owner == nil || c.Owner.env == nil {
		return
	}
	if p := c.Owner.Position(); !p.Equal(c.Rect.Center) {
		c.MoveTo(p)
	}
}

func (e *Environment) Cameras() []*Agent {
	var out []*Agent
	for _, a := range e.Agents() {
		if a.Camera {
			out = append(out, a)
		}
	}
	return out
}

// AgentCamera returns the camera owned by owner, preferring the lowest id.
func (e *Environment) AgentCamera(owner *Agent) (*Agent, bool) {
	if owner == nil {
		return nil, false
	}
	for _, c := range e.Cameras() {
		if c.Owner == owner {
			return c, true
		}
	}
	return nil, false
}

// VisibleTo returns the non-camera agents camera c can see, by ascending id.
func (e *Environment) VisibleTo(c *Agent) []*Agent {
	var out []*Agent
	for _, a := range e.NearbyAgentsInRect(c.Rect) {
		if a.Camera || !c.CanSee(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

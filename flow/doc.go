// Package flow implements conversation patterns: the declared, deterministic
// ordered sequences of agent calls a workflow executes per turn. The step
// order is fixed by the pattern definition and every step declares its own
// failure policy explicitly, so a reader can tell from the declaration which
// steps retry into a degraded result and which abort the turn.
package flow

package agent

import (
	"invoicescraper/pkg/logger"
)

// Strategy is one named heuristic. Find reports false when it has nothing.
type Strategy[T any] struct {
	Name string
	Find func(s *Snapshot, key string) (T, bool)
}

// Cascade is an ordered list of strategies for one operation
type Cascade[T any] struct {
	Operation  string
	Strategies []Strategy[T]
}

// Run tries each strategy in order and returns the first result together
// with the name of the strategy that produced it
func (c Cascade[T]) Run(s *Snapshot, key string) (T, string, bool) {
	var zero T
	for _, st := range c.Strategies {
		if v, ok := st.Find(s, key); ok {
			return v, st.Name, true
		}
	}
	return zero, "", false
}

// Names lists the strategy names in order
func (c Cascade[T]) Names() []string {
	names := make([]string, len(c.Strategies))
	for i, st := range c.Strategies {
		names[i] = st.Name
	}
	return names
}

// StrategyObserver is told which strategy won each cascade run
type StrategyObserver interface {
	ObserveStrategy(operation, strategy string)
}

// runCascade runs c and reports the winning strategy
func runCascade[T any](a *Agent, c Cascade[T], s *Snapshot, key string) (T, string, bool) {
	v, name, ok := c.Run(s, key)
	if !ok {
		a.logger.DebugWithFields("Cascade exhausted", map[string]interface{}{
			"operation":  c.Operation,
			"strategies": c.Names(),
		})
		return v, "", false
	}
	logger.LogStrategyMatch(a.logger, c.Operation, name, map[string]interface{}{"key": key})
	if a.observer != nil {
		a.observer.ObserveStrategy(c.Operation, name)
	}
	return v, name, true
}

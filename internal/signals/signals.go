// Package signals turns candle series into directional signals (+1 buy,
// -1 sell, 0 hold). Generators are registered by ID at init time and looked
// up by the backtest runner from config.
package signals

import (
	"fmt"
	"math"
	"sync"

	"github.com/algobot/gotrade/internal/domain"
)

// Generator produces one signal per candle.
type Generator interface {
	ID() string
	Generate(series domain.Series) []domain.Signal
}

var (
	registry   = make(map[string]func(params map[string]float64) Generator)
	registryMu sync.RWMutex
)

// Register makes a generator constructor available under id. Generators
// register themselves in init(); duplicate registration is a programmer
// error.
func Register(id string, ctor func(params map[string]float64) Generator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[id]; exists {
		panic(fmt.Errorf("signal generator %s already registered", id))
	}
	registry[id] = ctor
}

// New builds a registered generator with the given parameters.
func New(id string, params map[string]float64) (Generator, error) {
	registryMu.RLock()
	ctor, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("signal generator %s not registered", id)
	}
	return ctor(params), nil
}

// IDs lists the registered generator IDs.
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	return out
}

func param(params map[string]float64, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func holdAll(n int) []domain.Signal {
	return make([]domain.Signal, n)
}

func validNum(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

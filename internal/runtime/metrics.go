package runtime

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/cotflow/internal/runtime/config"
)

// relayMetrics counts what the relay did with each document.
type relayMetrics struct {
	classified *prometheus.CounterVec
	poisoned   *prometheus.CounterVec
}

func newRelayMetrics(registerer prometheus.Registerer, namespace string) (*relayMetrics, error) {
	classified, err := registerCounterVec(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_total",
			Help:      "CoT documents relayed, by inferred category.",
		},
		[]string{"category"},
	))
	if err != nil {
		return nil, err
	}

	poisoned, err := registerCounterVec(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poison",
			Name:      "messages_total",
			Help:      "Messages moved to the poison queue, by reason.",
		},
		[]string{"reason"},
	))
	if err != nil {
		return nil, err
	}

	return &relayMetrics{classified: classified, poisoned: poisoned}, nil
}

// registerCounterVec registers c, reusing an identical collector that is
// already registered so several services can share one registry.
func registerCounterVec(registerer prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// metricsNamespace turns the service name into a valid metric prefix.
func metricsNamespace(conf *configpkg.Config) string {
	name := conf.ServiceName
	if name == "" {
		name = configpkg.DefaultServiceName
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

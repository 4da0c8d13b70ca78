package postgres

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryLabels   = []string{"query", "success"}
	databaseTimer = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "condacore",
		Subsystem: "database_postgres",
		Name:      "query_duration_seconds",
		Help:      "Database query duration for noted query, including data read time.",
	}, queryLabels)
	databaseCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "condacore",
		Subsystem: "database_postgres",
		Name:      "query_total",
		Help:      "Database query count for noted query.",
	}, queryLabels)
)

// query wraps one named database call with a duration/count metric pair,
// reported when done is called with the call's outcome.
type query struct {
	labels prometheus.Labels
	timer  *prometheus.Timer
}

func startQuery(name string) query {
	q := query{labels: prometheus.Labels{"query": name, "success": "false"}}
	q.timer = prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		databaseTimer.With(q.labels).Observe(v)
	}))
	return q
}

func (q query) done(err *error) {
	q.labels["success"] = strconv.FormatBool(errors.Is(*err, nil))
	databaseCounter.With(q.labels).Inc()
	q.timer.ObserveDuration()
}

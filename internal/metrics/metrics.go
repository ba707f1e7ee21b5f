// Package metrics exposes race engine and HTTP measurements to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"math-race-service/internal/domain"
)

// Metrics implements app.Observer.
type Metrics struct {
	racesStarted  *prometheus.CounterVec
	racesFinished *prometheus.CounterVec
	activeRaces   prometheus.Gauge
	answers       *prometheus.CounterVec
	powerUps      *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg. Use a fresh registry per test.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		racesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "race_started_total",
				Help: "Total number of races started",
			},
			[]string{"level"},
		),
		racesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "race_finished_total",
				Help: "Total number of races finished, by outcome",
			},
			[]string{"status"},
		),
		activeRaces: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "race_active_current",
				Help: "Races started by this instance and not finished yet",
			},
		),
		answers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "race_answers_total",
				Help: "Submitted answers",
			},
			[]string{"result"}, // correct, wrong or timeout
		),
		powerUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "race_power_ups_total",
				Help: "Activated power-ups",
			},
			[]string{"type"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "race_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),
	}
}

func (m *Metrics) RaceStarted(levelID int64) {
	m.racesStarted.WithLabelValues(strconv.FormatInt(levelID, 10)).Inc()
	m.activeRaces.Inc()
}

func (m *Metrics) AnswerSubmitted(correct, timedOut bool) {
	result := "wrong"
	switch {
	case timedOut:
		result = "timeout"
	case correct:
		result = "correct"
	}
	m.answers.WithLabelValues(result).Inc()
}

func (m *Metrics) PowerUpActivated(t domain.PowerUpType) {
	m.powerUps.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) RaceFinished(status domain.GameStatus) {
	m.racesFinished.WithLabelValues(string(status)).Inc()
	m.activeRaces.Dec()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

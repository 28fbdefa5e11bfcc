package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	triggersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "triggers_active",
		Help: "Triggers currently waiting in the store.",
	})
	triggersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triggers_created_total",
		Help: "Triggers created, by kind.",
	}, []string{"kind"})
	triggersFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triggers_fired_total",
		Help: "Triggers fired and deleted, by kind.",
	}, []string{"kind"})
)

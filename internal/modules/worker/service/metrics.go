package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_ticks_total",
		Help: "Evaluation ticks started.",
	})
	tickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_tick_errors_total",
		Help: "Evaluation ticks that ended with an error.",
	})
)

package prom

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	xhttp "github.com/stayware/message-etl/pkg/http"
	"github.com/stayware/message-etl/pkg/logger"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemPipeline = "pipeline"
)

const (
	MetricRecordsProcessed = "records_processed_total"
	MetricRecordsFailed    = "records_failed_total"
	MetricRunDuration      = "run_duration_seconds"
	MetricAPIRequests      = "upstream_requests_total"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var metricCounters = make(map[string]prometheus.Counter)
var metricHistograms = make(map[string]prometheus.Histogram)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounter(SystemPipeline, MetricRecordsProcessed))
	hasError(createCounter(SystemPipeline, MetricRecordsFailed))
	hasError(createCounter(SystemPipeline, MetricAPIRequests))
	hasError(createHistogram(SystemPipeline, MetricRunDuration))

	return err
}

func ListenAndServe(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounter(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	metricCounters[subsystem+name] = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	})
	return prometheus.Register(metricCounters[subsystem+name])
}

func createHistogram(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	metricHistograms[subsystem+name] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	return prometheus.Register(metricHistograms[subsystem+name])
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, value float64) {
	if !MetricSystemEnabled {
		return
	}
	c, ok := metricCounters[subsystem+name]
	if !ok {
		logger.Warn(fmt.Sprintf("prom: counter %s/%s is not registered", subsystem, name))
		return
	}
	c.Add(value)
}

func ObserveHistogram(subsystem, name string, value float64) {
	if !MetricSystemEnabled {
		return
	}
	h, ok := metricHistograms[subsystem+name]
	if !ok {
		logger.Warn(fmt.Sprintf("prom: histogram %s/%s is not registered", subsystem, name))
		return
	}
	h.Observe(value)
}

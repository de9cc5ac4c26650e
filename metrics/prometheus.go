package metrics

import (
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// all metrics and middlewares for the REST API
var (
	// to prevent metrics from being initialized multiple times
	isMetricsInitVar uint32 = 0

	// active REST API connections
	activeRESTConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_rest_connections",
			Help: "Number of active REST API connections",
		},
	)

	// response times for REST APIs
	responseTimeRESTAPI = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restapi_response_time_milliseconds",
			Help:    "REST API response time distributions",
			Buckets: []float64{1, 10, 50, 100, 200, 300, 400, 500},
		},
		[]string{"method", "endpoint"},
	)

	// size of the body for REST APIs
	requestSizeRESTAPI = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restapi_request_size_kilobytes",
			Help:    "REST API request size distributions",
			Buckets: []float64{200, 500, 900, 1500, 2000, 3000, 4000, 5000},
		},
		[]string{"method", "endpoint"},
	)

	responseSizeRESTAPI = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restapi_response_size_kilobytes",
			Help:    "REST API response size distributions",
			Buckets: []float64{200, 500, 900, 1500, 2000, 3000, 4000, 5000},
		},
		[]string{"method", "endpoint"},
	)

	// Number of requests processed by REST API
	RESTRequestMetricsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_requests_processed_total",
		Help: "The total number of processed REST requests",
	}, []string{"method", "endpoint"})

	// Number of submissions accepted through the anonymous intake
	SubmissionsReceivedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_received_total",
		Help: "The total number of accepted submissions",
	})

	// Number of submissions purged, by sweep, recipient or admin
	SubmissionsPurgedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_purged_total",
		Help: "The total number of purged submissions",
	})

	// Number of denied authorization checks, a security signal
	AccessDeniedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_denied_total",
		Help: "The total number of denied submission access checks",
	})

	// Number of failed authentication proofs
	AuthFailuresMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed access proofs",
	})

	// Number of recipient notifications delivered
	NotificationsSentMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "The total number of delivered recipient notifications",
	})
)

func setIsMetricsInit() {
	atomic.StoreUint32(&isMetricsInitVar, 1)
}

func isMetricsInit() bool {
	return atomic.LoadUint32(&isMetricsInitVar) == 1
}

func InitMetrics() {
	if !isMetricsInit() {
		setIsMetricsInit()

		// Metrics have to be registered to be exposed
		prometheus.MustRegister(activeRESTConnections)
		prometheus.MustRegister(responseTimeRESTAPI)
		prometheus.MustRegister(requestSizeRESTAPI)
		prometheus.MustRegister(responseSizeRESTAPI)
		prometheus.MustRegister(RESTRequestMetricsTotal)
		prometheus.MustRegister(SubmissionsReceivedMetricsCount)
		prometheus.MustRegister(SubmissionsPurgedMetricsCount)
		prometheus.MustRegister(AccessDeniedMetricsCount)
		prometheus.MustRegister(AuthFailuresMetricsCount)
		prometheus.MustRegister(NotificationsSentMetricsCount)
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Increment the counter for the given endpoint:
		RESTRequestMetricsTotal.WithLabelValues(c.Request.Method, c.FullPath()).Inc()

		r := c.Request
		w := c.Writer

		// Start timing responseTime histogram
		start := time.Now()

		// Set activeConnections gauge
		activeRESTConnections.Inc()
		defer activeRESTConnections.Dec()

		c.Next()

		// observe request size in kilobytes
		if r.ContentLength > 0 {
			requestSizeRESTAPI.WithLabelValues(c.Request.Method, c.FullPath()).Observe(float64(r.ContentLength) / 1024)
		}

		// set response size
		if w.Size() > 0 {
			responseSizeRESTAPI.WithLabelValues(c.Request.Method, c.FullPath()).Observe(float64(w.Size()) / 1024)
		}

		// Set responseTime histogram
		latency := time.Since(start)
		responseTimeRESTAPI.WithLabelValues(c.Request.Method, c.FullPath()).Observe(float64(latency.Milliseconds()))
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gridbase_http_request_duration_seconds",
		Help:    "Latency of API requests, by route and response status.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "status"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

// Registers the handler on the router, recording its latency under the route pattern.
func (api API) handle(pattern string, handler http.HandlerFunc) {
	api.router.HandleFunc(pattern, func(res http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: res, status: http.StatusOK}

		handler(recorder, req)

		requestDuration.
			WithLabelValues(pattern, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

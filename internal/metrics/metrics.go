package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_ws_messages_total",
		Help: "Total number of chat messages sent",
	})
	WsBroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_ws_broadcasts_total",
		Help: "Total number of frames broadcast, by frame type",
	}, []string{"type"})
	WsDroppedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_ws_dropped_frames_total",
		Help: "Total number of malformed or unknown inbound frames dropped",
	})
	PushDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_push_deliveries_total",
		Help: "Total number of push delivery attempts, by outcome",
	}, []string{"outcome"})
	PushPrunedEndpoints = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_push_pruned_endpoints_total",
		Help: "Total number of stale push endpoints pruned",
	})
	SweptImagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_swept_images_total",
		Help: "Total number of expired message images cleared by the sweeper",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsMessagesTotal,
		WsBroadcastsTotal,
		WsDroppedFramesTotal,
		PushDeliveriesTotal,
		PushPrunedEndpoints,
		SweptImagesTotal,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

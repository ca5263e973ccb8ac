// Package httpapi implements the HTTP Frontend: a gorilla/mux router
// exposing GET/HEAD /ipfs/{path}, optional transcoding query parameters,
// a /static/ file server, and Prometheus metrics, grounded on the
// teacher's core/corehttp/gateway_handler.go request-handling shape.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/fetch"
	"github.com/ipfs/ipfs-cache-gateway/internal/ipfsurl"
	"github.com/ipfs/ipfs-cache-gateway/internal/transcode"
)

var log = logging.Logger("httpapi")

// Handler serves the gateway's HTTP surface (spec.md §4.7).
type Handler struct {
	pool       *fetch.Pool
	transcoder *transcode.Transcoder
	staticDir  string

	requestLatency *prometheus.SummaryVec
	cacheOutcome   *prometheus.CounterVec
}

// New constructs a Handler and its router. staticDir may be empty, in
// which case /static/ is not registered.
func New(pool *fetch.Pool, transcoder *transcode.Transcoder, staticDir string) (*Handler, *mux.Router) {
	h := &Handler{
		pool:       pool,
		transcoder: transcoder,
		staticDir:  staticDir,
	}
	h.registerMetrics()

	r := mux.NewRouter()
	r.HandleFunc("/ipfs/{path:.*}", h.getOrHead).Methods(http.MethodGet, http.MethodHead)
	if staticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	r.Handle("/metrics", promhttp.Handler())

	return h, r
}

// registerMetrics mirrors the teacher's newGatewayHandler pattern: register
// a SummaryVec, and on AlreadyRegisteredError (a second Handler constructed
// in the same process, as tests do) reuse the already-registered collector
// instead of failing.
func (h *Handler) registerMetrics() {
	latency := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: "ipfscache",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "Time spent fetching content for /ipfs/{path} requests.",
		},
		[]string{"outcome"},
	)
	if err := prometheus.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.SummaryVec)
		} else {
			log.Errorw("failed to register request_latency_seconds", "error", err)
		}
	}
	h.requestLatency = latency

	outcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipfscache",
			Subsystem: "http",
			Name:      "cache_outcome_total",
			Help:      "Count of /ipfs/{path} fetches by outcome (ok or error).",
		},
		[]string{"outcome"},
	)
	if err := prometheus.Register(outcome); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcome = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			log.Errorw("failed to register cache_outcome_total", "error", err)
		}
	}
	h.cacheOutcome = outcome
}

func (h *Handler) getOrHead(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	url := "ipfs://" + path

	timer := prometheus.NewTimer(h.requestLatency.WithLabelValues("fetch"))
	data, err := h.pool.Fetch(r.Context(), url)
	timer.ObserveDuration()

	if err != nil {
		h.cacheOutcome.WithLabelValues("error").Inc()
		webError(w, "fetch", err, http.StatusBadRequest)
		return
	}
	h.cacheOutcome.WithLabelValues("ok").Inc()

	filename := data.Filename
	contentType := data.ContentType

	if resized, ok, rerr := h.maybeTranscode(r, &filename, &contentType); rerr != nil {
		webError(w, "transcode", rerr, http.StatusBadRequest)
		return
	} else if ok {
		writeImageHeaders(w, resized)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "inline")
	http.ServeFile(w, r, filename)
}

// maybeTranscode applies img-width/img-height/img-format/video-format query
// parameters (spec.md §4.7) if present. ok reports whether a transcode was
// performed (and therefore whether image dimension headers should be set).
func (h *Handler) maybeTranscode(r *http.Request, filename, contentType *string) (*transcode.Result, bool, error) {
	q := r.URL.Query()
	widthStr, heightStr := q.Get("img-width"), q.Get("img-height")
	if widthStr == "" && heightStr == "" {
		return nil, false, nil
	}
	if h.transcoder == nil {
		return nil, false, errors.New("transcoding is not configured")
	}

	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return nil, false, fmt.Errorf("invalid img-width: %w", err)
	}
	height, err := strconv.Atoi(heightStr)
	if err != nil {
		return nil, false, fmt.Errorf("invalid img-height: %w", err)
	}

	format := q.Get("img-format")
	if format == "" {
		format = q.Get("video-format")
	}

	result, err := h.transcoder.Transcode(*filename, width, height, format)
	if err != nil {
		return nil, false, err
	}

	*filename = result.Filename
	*contentType = result.ContentType
	return result, true, nil
}

func writeImageHeaders(w http.ResponseWriter, result *transcode.Result) {
	w.Header().Set("x-image-width", strconv.Itoa(result.Width))
	w.Header().Set("x-image-height", strconv.Itoa(result.Height))
	w.Header().Set("x-image-size", fmt.Sprintf("%d,%d", result.Width, result.Height))
}

// webError classifies err and writes a textual response, grounded on the
// teacher's webError/webErrorWithCode split in gateway_handler.go.
func webError(w http.ResponseWriter, message string, err error, defaultCode int) {
	code := defaultCode
	if errors.Is(err, ipfsurl.ErrInvalidURL) {
		code = http.StatusBadRequest
	}
	http.Error(w, fmt.Sprintf("%s: %s", message, err), code)
	if code >= 500 {
		log.Warnw("server error", "message", message, "error", err)
	}
}

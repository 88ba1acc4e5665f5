package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxScrapesInFlight bounds concurrent scrapes of the registry.
const maxScrapesInFlight = 4

// Handler serves the collector's registry in the Prometheus exposition
// format. A failing collector does not hide the others. The scrape
// counters of the handler itself are registered on the same registry.
func (c *Collector) Handler() http.Handler {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxScrapesInFlight,
		Registry:            c.registry,
	})
	return promhttp.InstrumentMetricHandler(c.registry, h)
}

// Package metrics defines the Prometheus instrumentation for pipeline stages
// and manifest synchronization. Lodestar runs are short-lived, so instead of
// exposing a scrape endpoint the gathered families can be written out at the
// end of a run.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteTo encodes all registered metric families in the Prometheus text
// exposition format.
func WriteTo(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	return nil
}

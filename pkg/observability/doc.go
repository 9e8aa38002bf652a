/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log lines.

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	eng, _ := novella.New("stories",
		novella.WithLifecycleHooks(metrics.Hooks()),
		novella.WithLifecycleHooks(observability.LogHooks(logger)),
	)
	http.Handle("/metrics", promhttp.Handler())
*/
package observability

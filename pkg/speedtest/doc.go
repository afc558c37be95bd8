/*
Package speedtest sequences a complete measurement run against the
speedtest.net server network.

A run moves through fixed stages:

	Idle -> ServerSelected -> DownloadMeasured -> UploadMeasured -> Complete

Each transition is one call into a component:

  - ServerSelector (package selector) locates the client, ranks discovered
    servers by great-circle distance and latency-probes the nearest ten.
  - ThroughputMeasurer (package throughput) runs every download, then every
    upload transfer concurrently and reports one aggregate rate per phase.

A failure at any stage aborts the run and is returned wrapped, so callers
can still match it with errors.Is:

	result, err := test.Run(ctx)
	if errors.Is(err, models.ErrNoReachableServers) {
		// every probed server failed its latency probe
	}

Use New to wire the default components from Settings, or NewTest to supply
your own selector and measurer.
*/
package speedtest

package util

// Histogram buckets shared by the services. Durations are observed in seconds.
var (
	// MetricsBucketsMicroSeconds suits per transaction work such as script checks.
	MetricsBucketsMicroSeconds = []float64{
		128e-6, 256e-6, 512e-6, 1024e-6, 2048e-6, 4096e-6, 8192e-6, 16384e-6, 32768e-6, 65536e-6, 131072e-6, 262144e-6,
	}

	// MetricsBucketsMilliSeconds suits per block work such as connecting a block.
	MetricsBucketsMilliSeconds = []float64{
		1e-3, 2e-3, 4e-3, 16e-3, 32e-3, 64e-3, 128e-3, 256e-3, 512e-3, 1024e-3, 2048e-3, 4096e-3,
	}

	// MetricsBucketsSeconds suits coin database flushes.
	MetricsBucketsSeconds = []float64{
		0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256,
	}

	// MetricsBucketsSize is in bytes, from a bare coinbase block up to 32 MB.
	MetricsBucketsSize = []float64{
		256, 1024, 4096, 16384, 65536, 262144, 1 << 20, 2 << 20, 4 << 20, 8 << 20, 16 << 20, 32 << 20,
	}
)

/*
Package models defines the values passed between the stages of a speed test:
discovery output, ranked servers, per-transfer samples, phase aggregates and
the final Result.

Core Types:

	ClientInfo        // the caller's IP and coordinate
	CandidateServer   // a discovered server with its distance from the caller
	RankedServer      // a candidate after latency probing
	TransferSample    // one download or upload task
	MeasurementResult // bytes and wall-clock span of one throughput phase
	Result            // the final record of a run

Values are copied between components. Nothing here is mutated after the stage
that produced it returns, so no synchronization is needed when a Result is
handed to reporting or metrics code.

Errors:

	ErrNoServersAvailable // discovery produced no usable candidates
	ErrNoReachableServers // every probed candidate failed its latency probe
	ErrMalformedResponse  // a discovery payload or upload echo could not be parsed
*/
package models

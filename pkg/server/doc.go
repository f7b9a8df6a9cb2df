// Package server serves a FunctionRunnerService over gRPC, with mTLS
// credentials loaded from a certificates directory and the standard gRPC
// health service.
package server

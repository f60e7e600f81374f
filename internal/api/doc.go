// Package api exposes the HTTP surface of the crew gateway: synchronous
// and asynchronous crew runs, job polling, listing and statistics, plus
// unauthenticated health and metrics endpoints. Every response is a JSON
// envelope carrying an ok flag and, on failure, a coded error object.
package api

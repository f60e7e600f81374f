// Package llm contains adapters for invoking large language model providers.
// It abstracts away provider-specific APIs behind a single Client interface and
// resolves per-request provider/model overrides against process-wide defaults.
package llm

// Package crew defines declarative multi-agent workflows and the
// sequential executor that runs them.
//
// A Definition names a set of agents and an ordered list of tasks.
// Each task is handled by one agent and may reference the output of
// earlier tasks through its context list. The Executor resolves the
// request inputs against the definition's input specs, renders the
// prompts, and calls the configured model provider once per task.
//
// Built-in definitions cover the marketing, support, analysis and
// social_media workflows; additional definitions can be loaded from a
// YAML file and registered alongside them.
package crew

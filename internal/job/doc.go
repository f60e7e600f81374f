// Package job implements the asynchronous execution pipeline: a store
// tracking each job through queued, running, done and failed, a queue
// abstraction with in-memory, Redis and RabbitMQ drivers, a worker pool
// that claims jobs and runs them through the crew executor, and a
// janitor that removes terminal jobs past their retention window.
//
// Job status only moves forward. A job carries either a result or an
// error, never both, and the terminal transition sets exactly one of
// them. Claiming or completing a job that already reached a terminal
// state surfaces a typed error instead of silently overwriting.
package job

// Package queue schedules chat-scoped jobs.
//
// Jobs submitted for the same chat run strictly one after another in
// submission order. Jobs of different chats run in parallel, bounded by a
// global concurrency gate. Admission is controlled synchronously in Enqueue:
// a global cap on pending jobs and a per-chat cap on pending jobs.
//
// Each chat with queued work owns exactly one dispatch goroutine. The goroutine
// is started on demand by Enqueue and exits (releasing the chat's bookkeeping)
// once the chat is idle. The blocking part of a job runs on a worker pool sized
// to the concurrency limit; lifecycle callbacks run on the dispatch goroutine.
package queue

// Package scheduler turns cron and interval schedules into task engine
// enqueues. It never runs jobs itself.
package scheduler

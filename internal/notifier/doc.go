// Package notifier alerts the bot owners about rotation trouble.
//
// It watches rotation cycle reports on the event bus and sends a direct
// message to every owner when a cycle produces no links, cannot publish or
// runs with invalid settings, and once more when rotation recovers.
// Repeated alerts with the same key are suppressed for a dedup window.
// Delivery goes through a small queue, a rate limiter and retry with
// backoff so a burst of failures never floods the owners.
package notifier

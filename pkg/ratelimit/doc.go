// Package ratelimit throttles media downloads to a configured number of
// requests per minute.
package ratelimit

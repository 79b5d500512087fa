// Package api serves health, readiness, metrics and campaign progress over
// HTTP while a crawl is running.
package api

// Package api implements the optional HTTP status API and live record feed
// for mqttlog.
//
// This package provides:
//   - Health and status endpoints for the broker session, subscriptions,
//     dispatcher and sink
//   - A paged view of the SQLite message journal
//   - A WebSocket hub that pushes every appended record to subscribed clients
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Graceful Degradation
//
// Every data source is optional. Without a journal the messages endpoint
// answers 404, and a nil status source simply leaves that section out of
// the status document. The recorder keeps writing to the log file whether
// or not the API is reachable.
package api

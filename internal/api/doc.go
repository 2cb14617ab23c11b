// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /extract/research/{department_code}, /extract/courses/{department_code},
//     /extract/events and /extract/all run the extraction pipelines. Each
//     accepts debug and persist query parameters.
//   - POST /write-to-db receives storage change notifications and ingests the
//     uploaded object into the record store.
//   - GET /records/professors reads stored professors back.
//   - GET /healthz, /readyz for health checks and GET /metrics for Prometheus.
package api

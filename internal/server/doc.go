// Package server provides the read-only status service started next to the scheduler.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added: the first one added is the outermost wrapper.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so a request with the
// wrong method gets 405 and wildcards are read with [http.Request.PathValue].
//
// # Routes
//
//	GET /health              → uptime and whether run history is enabled
//	GET /api/playlists       → summaries of every stored snapshot
//	GET /api/playlists/{id}  → one stored snapshot
//	GET /api/runs            → recent runs, ?playlist=&status=&limit=
//	GET /api/runs/{id}       → one run with its track results
//
// Every response is JSON. Errors are {"error": "..."}.
package server

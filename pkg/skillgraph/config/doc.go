/*
Package config loads host settings and extracts typed node parameters.

# Settings

Settings come from defaults, an optional YAML or JSON file, .env files and
SKILLGRAPH_* environment variables, later sources winning:

	settings, err := config.Load("skillgraph.yaml")
	if err != nil {
	    log.Fatal(err)
	}

A settings file:

	history_limit: 100
	log:
	  level: debug
	  format: json
	persistence:
	  backend: sqlite
	  sqlite_path: /var/lib/skillgraph/graphs.db
	observability:
	  metrics: true

Environment overrides: SKILLGRAPH_HISTORY_LIMIT, SKILLGRAPH_LOG_LEVEL,
SKILLGRAPH_LOG_FORMAT, SKILLGRAPH_PERSISTENCE_BACKEND, SKILLGRAPH_SQLITE_PATH,
SKILLGRAPH_REDIS_URL, SKILLGRAPH_REDIS_PREFIX, SKILLGRAPH_METRICS,
SKILLGRAPH_TRACING, SKILLGRAPH_EXECLOG_CAPACITY, SKILLGRAPH_EXECLOG_BUFFER.

# Node parameters

Params wraps a node's parameter map and handles missing keys and JSON/YAML
number types by returning defaults:

	p := config.NewParams(req.Params)
	steps := p.Int("steps", 30)
	timeout := p.Duration("timeout", time.Minute)
	seed, ok := p.Int64("seed")

Params is safe for concurrent reads as long as the wrapped map is not
modified.
*/
package config

// Package config handles configuration loading for stranger-relay.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. $XDG_CONFIG_HOME/stranger-relay/config.yaml
//
// A file ending in .toml is read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	moderator:
//	  matrix:
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	service:
//	  servers: []                  # empty: front1..front16.omegle.com
//	  base_url: ""                 # overrides servers, e.g. http://127.0.0.1:8099
//	  local_addresses: []          # outbound source IPs, one drawn per connect
//	  poll_interval: "2.5s"
//	  restart_delay: "2.5s"
//	  request_timeout: "10s"
//	  poll_failure_threshold: 5    # 0 disables dead-poll detection
//	  idle_timeout: "0s"           # 0 disables the idle hook
//
//	relay:
//	  isolation: "goroutine"       # goroutine or process
//
//	moderator:
//	  command_prefix: "!"
//	  room_topic: false            # mirror session state into the room topic
//	  matrix:
//	    homeserver: "https://matrix.org"
//	    user_id: "@relay:matrix.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	    room_id: "!abc:matrix.org"
//	    allowed_users: ["@me:matrix.org"]   # empty: anyone in the room
//	  personas:
//	    relay: {name: "ManInTheMiddle", icon: "mxc://..."}
//	    a: {name: "Person A"}
//	    b: {name: "Person B"}
//
//	database:
//	  path: ""                     # empty disables the ledger
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// Without a Matrix homeserver notices are only logged and no moderator
// commands are accepted.
package config

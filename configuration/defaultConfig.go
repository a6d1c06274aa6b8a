package configuration

// defaultConfig loaded anyway when server starts
// may be extended/replaced by user-provided config later
var defaultConfig = []byte(`
version: v0.1.0
system:
  log:
    console:
      level: info # available levels: debug, info, warn, error
      timestamp:
        format: RFC3339
  http:
    addr: ":8222" # health checks and prometheus metrics. empty disables
  acceptor:
    maxIncoming: 10000
    preSpawn: 0
  stats:
    interval: 60s # 0 disables periodic stats log
nats:
  serverName: vlnats
  clusterName: ""
  maxPayload: 65535
  maxControlLine: 4096
  maxPending: 65536
  heartbeat: 60s
  writeDeadline: 2s
  flushTimeout: 1s
  closeSlowConsumers: false
  noResponders: true
keystore:
  file: "" # ephemeral key when empty
listeners:
  host: 0.0.0.0
  tcp:
    port: 4222
  ws:
    port: 0 # 0 disables
    path: /
`)

package main

// Built-in metric sets for mysql connections.
const mysqlMetrics = `
- name: schema
  namespace: mysql
  query: >-
    SELECT table_schema AS schema_name, COUNT(*) AS tables,
    COALESCE(SUM(data_length + index_length), 0) AS size_bytes
    FROM information_schema.tables WHERE table_schema = DATABASE()
    GROUP BY table_schema
  metrics:
  - name: schema_name
    usage: label
  - name: tables
    desc: Number of tables in the connected schema.
    usage: gauge
  - name: size_bytes
    desc: Data and index bytes used by the connected schema.
    usage: gauge
- name: processlist
  namespace: mysql
  query: SELECT COUNT(*) AS threads FROM information_schema.processlist
  metrics:
  - name: threads
    desc: Number of threads currently known to the server.
    usage: gauge
`

package main

// Built-in metric sets for postgres connections, reported from the
// statistics collector of the connected database.
const postgresMetrics = `
- name: stat_database
  namespace: pg
  query: >-
    SELECT datname AS database, numbackends, xact_commit, xact_rollback,
    blks_read, blks_hit, tup_returned, tup_fetched, tup_inserted,
    tup_updated, tup_deleted, conflicts, temp_files, temp_bytes, deadlocks
    FROM pg_stat_database WHERE datname = current_database()
  metrics:
  - name: database
    usage: label
  - name: numbackends
    desc: Number of backends currently connected to this database.
    usage: gauge
  - name: xact_commit
    desc: Number of transactions in this database that have been committed.
    usage: counter
  - name: xact_rollback
    desc: Number of transactions in this database that have been rolled back.
    usage: counter
  - name: blks_read
    desc: Number of disk blocks read in this database.
    usage: counter
  - name: blks_hit
    desc: Number of times disk blocks were found already in the buffer cache.
    usage: counter
  - name: tup_returned
    desc: Number of rows returned by queries in this database.
    usage: counter
  - name: tup_fetched
    desc: Number of rows fetched by queries in this database.
    usage: counter
  - name: tup_inserted
    desc: Number of rows inserted by queries in this database.
    usage: counter
  - name: tup_updated
    desc: Number of rows updated by queries in this database.
    usage: counter
  - name: tup_deleted
    desc: Number of rows deleted by queries in this database.
    usage: counter
  - name: conflicts
    desc: Number of queries canceled due to conflicts with recovery.
    usage: counter
  - name: temp_files
    desc: Number of temporary files created by queries in this database.
    usage: counter
  - name: temp_bytes
    desc: Total amount of data written to temporary files by queries.
    usage: counter
  - name: deadlocks
    desc: Number of deadlocks detected in this database.
    usage: counter
- name: database
  namespace: pg
  query: SELECT pg_database_size(current_database()) AS size_bytes
  metrics:
  - name: size_bytes
    desc: Disk space used by the current database.
    usage: gauge
`

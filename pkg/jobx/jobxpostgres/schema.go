package jobxpostgres

// Schema creates the tables used by the store. It is idempotent.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS jobx_jobs_seq;

CREATE TABLE IF NOT EXISTS jobx_jobs (
	queue            TEXT             NOT NULL,
	id               TEXT             NOT NULL,
	name             TEXT             NOT NULL,
	payload          JSONB            NOT NULL,
	priority         INTEGER          NOT NULL DEFAULT 0,
	max_attempts     INTEGER          NOT NULL,
	backoff_type     TEXT             NOT NULL DEFAULT '',
	backoff_delay_ms BIGINT           NOT NULL DEFAULT 0,
	backoff_jitter   DOUBLE PRECISION NOT NULL DEFAULT 0,
	timeout_ms       BIGINT           NOT NULL DEFAULT 0,
	state            TEXT             NOT NULL,
	attempts_made    INTEGER          NOT NULL DEFAULT 0,
	stalled_count    INTEGER          NOT NULL DEFAULT 0,
	progress         INTEGER          NOT NULL DEFAULT 0,
	last_error       TEXT             NOT NULL DEFAULT '',
	available_at     TIMESTAMPTZ      NOT NULL,
	lease_expires_at TIMESTAMPTZ,
	lease_token      TEXT             NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ      NOT NULL,
	processed_at     TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	seq              BIGINT           NOT NULL DEFAULT nextval('jobx_jobs_seq'),
	PRIMARY KEY (queue, id)
);

CREATE INDEX IF NOT EXISTS jobx_jobs_waiting_idx  ON jobx_jobs (queue, priority DESC, seq) WHERE state = 'waiting';
CREATE INDEX IF NOT EXISTS jobx_jobs_delayed_idx  ON jobx_jobs (queue, available_at) WHERE state = 'delayed';
CREATE INDEX IF NOT EXISTS jobx_jobs_active_idx   ON jobx_jobs (queue, lease_expires_at) WHERE state = 'active';
CREATE INDEX IF NOT EXISTS jobx_jobs_finished_idx ON jobx_jobs (queue, state, finished_at) WHERE state IN ('completed', 'failed');

CREATE TABLE IF NOT EXISTS jobx_paused_queues (
	queue     TEXT        PRIMARY KEY,
	paused_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

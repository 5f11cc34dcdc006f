package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS brands (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	site              TEXT NOT NULL,
	category_id       TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	product_count     INT NOT NULL DEFAULT 0,
	last_collected_at TIMESTAMPTZ,
	PRIMARY KEY (site, category_id)
);

CREATE TABLE IF NOT EXISTS products (
	site        TEXT NOT NULL,
	product_no  TEXT NOT NULL,
	category_id TEXT NOT NULL,
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
	first_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (site, product_no)
);

CREATE TABLE IF NOT EXISTS product_snapshots (
	id              BIGSERIAL PRIMARY KEY,
	site            TEXT NOT NULL,
	product_no      TEXT NOT NULL,
	category_id     TEXT NOT NULL,
	year            INT NOT NULL,
	week            INT NOT NULL,
	month           INT NOT NULL,
	brand_id        BIGINT REFERENCES brands(id),
	item_no         TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	url             TEXT NOT NULL DEFAULT '',
	image_url       TEXT NOT NULL DEFAULT '',
	price_original  INT,
	price_current   INT,
	rating_percent  DOUBLE PRECISION,
	rating_text     DOUBLE PRECISION,
	review_count    INT,
	popularity_rank INT,
	sales_rank      INT,
	analysis        JSONB,
	analysis_error  TEXT NOT NULL DEFAULT '',
	collected_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (site, product_no, category_id, year, week)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_week
	ON product_snapshots (site, year, week);

CREATE TABLE IF NOT EXISTS retry_tasks (
	id          BIGSERIAL PRIMARY KEY,
	site        TEXT NOT NULL,
	product_no  TEXT NOT NULL,
	category_id TEXT NOT NULL,
	year        INT NOT NULL,
	week        INT NOT NULL,
	state       TEXT NOT NULL DEFAULT 'pending',
	attempts    INT NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (site, product_no, category_id, year, week)
);

CREATE INDEX IF NOT EXISTS idx_retry_tasks_state
	ON retry_tasks (site, year, week, state);
`

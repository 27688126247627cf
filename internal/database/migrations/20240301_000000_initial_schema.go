package migrations

func init() {
	Register(Migration{
		Version:     "20240301-000000",
		Description: "initial catalog and scrape job schema",
		Up: []string{
			`CREATE TABLE navigation (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				url TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				last_scraped_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE category (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				navigation_id INTEGER NOT NULL REFERENCES navigation(id) ON DELETE CASCADE,
				parent_id INTEGER REFERENCES category(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				url TEXT NOT NULL,
				product_count INTEGER NOT NULL DEFAULT 0,
				last_scraped_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX idx_category_navigation ON category(navigation_id)`,
			`CREATE INDEX idx_category_parent ON category(parent_id)`,

			`CREATE TABLE product (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id TEXT NOT NULL UNIQUE,
				category_id INTEGER REFERENCES category(id) ON DELETE SET NULL,
				title TEXT NOT NULL,
				price REAL NOT NULL DEFAULT 0,
				currency TEXT NOT NULL DEFAULT '',
				availability TEXT NOT NULL DEFAULT '',
				rating REAL NOT NULL DEFAULT 0,
				image_url TEXT NOT NULL DEFAULT '',
				product_url TEXT NOT NULL DEFAULT '',
				last_scraped_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX idx_product_category ON product(category_id)`,

			`CREATE TABLE product_detail (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				product_id INTEGER NOT NULL UNIQUE REFERENCES product(id) ON DELETE CASCADE,
				description TEXT NOT NULL DEFAULT '',
				specs_json TEXT NOT NULL DEFAULT '{}',
				publisher TEXT NOT NULL DEFAULT '',
				isbn TEXT NOT NULL DEFAULT '',
				page_count INTEGER NOT NULL DEFAULT 0,
				genres_json TEXT NOT NULL DEFAULT '[]',
				reviews_count INTEGER NOT NULL DEFAULT 0,
				ratings_avg REAL NOT NULL DEFAULT 0,
				last_scraped_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE review (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				product_id INTEGER NOT NULL REFERENCES product(id) ON DELETE CASCADE,
				author TEXT NOT NULL,
				rating REAL NOT NULL DEFAULT 0,
				review_date TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL DEFAULT '',
				text_hash TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				UNIQUE(product_id, author, review_date, text_hash)
			)`,
			`CREATE INDEX idx_review_product ON review(product_id)`,

			`CREATE TABLE scrape_job (
				id TEXT PRIMARY KEY,
				target_url TEXT NOT NULL,
				target_type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				retry_count INTEGER NOT NULL DEFAULT 0,
				items_scraped INTEGER NOT NULL DEFAULT 0,
				error_log TEXT,
				metadata TEXT,
				cancel_requested INTEGER NOT NULL DEFAULT 0,
				run_after TEXT,
				started_at TEXT,
				finished_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX idx_scrape_job_status ON scrape_job(status)`,
			`CREATE INDEX idx_scrape_job_created_at ON scrape_job(created_at)`,
		},
	})
}

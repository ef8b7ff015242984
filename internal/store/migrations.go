package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per completed training run
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL UNIQUE,
			model_path TEXT NOT NULL,
			encoder_path TEXT NOT NULL,
			history_path TEXT NOT NULL,
			samples INTEGER NOT NULL,
			epochs INTEGER NOT NULL,
			train_accuracy REAL NOT NULL DEFAULT 0,
			test_accuracy REAL NOT NULL DEFAULT 0,
			test_loss REAL NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Samples per class used by a run
		`CREATE TABLE IF NOT EXISTS run_classes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
			label TEXT NOT NULL,
			samples INTEGER NOT NULL,
			UNIQUE(run_id, label)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_runs_created_at ON training_runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_classes_run_id ON run_classes(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

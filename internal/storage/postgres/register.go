package postgres

import "tlcetl/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}

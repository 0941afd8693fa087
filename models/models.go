package models

import (
	"github.com/priceworks/billing-engine/config/database"
)

const (
	ErrorCodeExternalFetch  = "external_fetch_error"
	ErrorCodePersistence    = "persistence_error"
	ErrorCodeQuotaExceeded  = "quota_exceeded"
	ErrorCodeRecordNotFound = "record_not_found"
)

type ApiStore struct {
	db *database.DB

	// usage limit seeded on lazily created free-plan rows
	freeUsageLimit int
}

func NewApiStore(db *database.DB, freeUsageLimit int) *ApiStore {
	return &ApiStore{
		db:             db,
		freeUsageLimit: freeUsageLimit,
	}
}

package models_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/tests"
)

func setupApiStore(t *testing.T) (*models.ApiStore, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := tests.SetupMockStore(t)

	store := models.NewApiStore(db, 20)

	return store, mock, cleanup
}

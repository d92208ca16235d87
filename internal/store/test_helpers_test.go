package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/roach88/cnyre/internal/model"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRatio creates a ratio with the percentage given as text ("88.00").
func createTestRatio(muni string, year int, pct string) model.Ratio {
	return model.Ratio{
		MunicipalityCode: muni,
		RateYear:         year,
		MunicipalityName: "Camillus",
		CountyName:       "Onondaga",
		MunicipalityType: "Town",
		Ratio:            decimal.RequireFromString(pct).Div(decimal.NewFromInt(100)),
	}
}

// createTestProperty creates a property with the location fields the facade
// filters on.
func createTestProperty(id, muni, zip, district string, year int) model.Property {
	return model.Property{
		ID:                 id,
		SwisCode:           muni,
		PrintKeyCode:       id[len(muni)+1:],
		MunicipalityCode:   muni,
		MunicipalityName:   "Camillus",
		CountyName:         "Onondaga",
		SchoolDistrictCode: district,
		SchoolDistrictName: "West Genesee",
		AddressNumber:      "104",
		AddressStreet:      "WARNERS RD",
		MailingCity:        "CAMILLUS",
		MailingState:       "NY",
		Zip:                zip,
		LastRollYear:       year,
	}
}

// createTestAssessment creates an assessment with the given class and values.
func createTestAssessment(id string, year int, class string, fullMarket, total int64) model.Assessment {
	return model.Assessment{
		PropertyID:               id,
		RollYear:                 year,
		PropertyClass:            class,
		PropertyClassDescription: "1 FAMILY RES",
		Front:                    decimal.RequireFromString("75"),
		Depth:                    decimal.RequireFromString("150.5"),
		FullMarketValue:          fullMarket,
		AssessmentTotal:          total,
	}
}

func mustWrite(t *testing.T, s *Store, b model.Batch) {
	t.Helper()
	if err := s.WriteBatch(context.Background(), b); err != nil {
		t.Fatalf("WriteBatch() failed: %v", err)
	}
}

func mustHash(t *testing.T, s *Store) string {
	t.Helper()
	h, err := s.ContentHash(context.Background())
	if err != nil {
		t.Fatalf("ContentHash() failed: %v", err)
	}
	return h
}

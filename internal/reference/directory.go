// Package reference provides read-only access to the lookup entities
// (agencies, companies, locations, regulations) and the tagger that links
// articles to them. The entities themselves are managed externally.
package reference

import (
	"context"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/storage"
)

// Directory resolves reference entities by type and ID, and enumerates
// them for tagging. Lookup errors are surfaced as-is so callers can
// distinguish a dangling reference (storage.ErrNotFound) from an outage.
type Directory interface {
	Agency(ctx context.Context, id uint) (*models.Agency, error)
	Company(ctx context.Context, id uint) (*models.Company, error)
	Location(ctx context.Context, id uint) (*models.Location, error)

	Agencies(ctx context.Context) ([]*models.Agency, error)
	Companies(ctx context.Context) ([]*models.Company, error)
	Locations(ctx context.Context) ([]*models.Location, error)
	Regulations(ctx context.Context) ([]*models.Regulation, error)
}

// StoreDirectory is a Directory backed by the repository.
type StoreDirectory struct {
	repo storage.Repository
}

// NewDirectory creates a repository-backed directory.
func NewDirectory(repo storage.Repository) *StoreDirectory {
	return &StoreDirectory{repo: repo}
}

func (d *StoreDirectory) Agency(ctx context.Context, id uint) (*models.Agency, error) {
	return d.repo.GetAgency(ctx, id)
}

func (d *StoreDirectory) Company(ctx context.Context, id uint) (*models.Company, error) {
	return d.repo.GetCompany(ctx, id)
}

func (d *StoreDirectory) Location(ctx context.Context, id uint) (*models.Location, error) {
	return d.repo.GetLocation(ctx, id)
}

func (d *StoreDirectory) Agencies(ctx context.Context) ([]*models.Agency, error) {
	return d.repo.ListAgencies(ctx)
}

func (d *StoreDirectory) Companies(ctx context.Context) ([]*models.Company, error) {
	return d.repo.ListCompanies(ctx)
}

func (d *StoreDirectory) Locations(ctx context.Context) ([]*models.Location, error) {
	return d.repo.ListLocations(ctx)
}

func (d *StoreDirectory) Regulations(ctx context.Context) ([]*models.Regulation, error) {
	return d.repo.ListRegulations(ctx)
}

var _ Directory = (*StoreDirectory)(nil)

package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/capfit/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no analysis matches the requested ID
var ErrNotFound = errors.New("analysis not found")

// AnalysisRepository defines the interface for analysis history operations
type AnalysisRepository interface {
	Migrate(ctx context.Context) error
	StoreAnalysis(ctx context.Context, analysis *models.Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Analysis, error)
	Close() error
}

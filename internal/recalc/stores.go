package recalc

import (
	"context"

	"github.com/MGMAppDev/soccerview-sub008/internal/repository"
)

// NewRepositoryStores wires the Postgres repositories into Stores
func NewRepositoryStores(db *repository.Database) Stores {
	return Stores{
		Teams:     db.Teams,
		Matches:   db.Matches,
		Standings: db.Standings,
		Ratings:   ratingStore{ratings: db.Ratings},
	}
}

type ratingStore struct {
	ratings *repository.RatingRepository
}

func (s ratingStore) BeginReplace(ctx context.Context) (RatingWriter, error) {
	replace, err := s.ratings.BeginReplace(ctx)
	if err != nil {
		return nil, err
	}
	return replace, nil
}

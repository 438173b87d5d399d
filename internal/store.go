package internal

import (
	"github.com/jmoiron/sqlx"
	"github.com/kinovod/kino/internal/database"
	"github.com/kinovod/kino/internal/movie"
)

type (
	// dataOrchestrator links the 'dumb' data stores together and provides
	// them with the database connection. Consumers receive this layer
	// rather than the stores themselves so that multi-statement operations
	// can be wrapped in transactions in one place.
	dataOrchestrator struct {
		db         database.Manager
		MovieStore *movie.Store
	}
)

func newDataOrchestrator(db database.Manager) *dataOrchestrator {
	return &dataOrchestrator{
		db:         db,
		MovieStore: movie.NewStore(),
	}
}

// CreateMovie inserts the movie inside a transaction; the row is durably
// committed by the time this returns, so the caller can safely announce it.
func (orchestrator *dataOrchestrator) CreateMovie(m *movie.Movie) error {
	return orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		return orchestrator.MovieStore.CreateMovie(tx, m)
	})
}

func (orchestrator *dataOrchestrator) GetMovie(id int64) (*movie.Movie, error) {
	return orchestrator.MovieStore.GetMovie(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) ListMovies() ([]*movie.MovieListResult, error) {
	return orchestrator.MovieStore.ListMovies(orchestrator.db.GetSqlxDb())
}

func (orchestrator *dataOrchestrator) SetThumbnailPath(movieID int64, path string) error {
	return orchestrator.MovieStore.SetThumbnailPath(orchestrator.db.GetSqlxDb(), movieID, path)
}

func (orchestrator *dataOrchestrator) SetPlaylistPath(movieID int64, path string) error {
	return orchestrator.MovieStore.SetPlaylistPath(orchestrator.db.GetSqlxDb(), movieID, path)
}

// DeleteMovie removes the row inside a transaction and returns the deleted
// record so artifact reconciliation can locate the files it referenced.
func (orchestrator *dataOrchestrator) DeleteMovie(id int64) (*movie.Movie, error) {
	var deleted *movie.Movie
	err := orchestrator.db.WrapTx(func(tx *sqlx.Tx) error {
		row, err := orchestrator.MovieStore.DeleteMovie(tx, id)
		if err != nil {
			return err
		}

		deleted = row
		return nil
	})

	return deleted, err
}

func (orchestrator *dataOrchestrator) CreateCategory(name string) (*movie.Category, error) {
	return orchestrator.MovieStore.CreateCategory(orchestrator.db.GetSqlxDb(), name)
}

func (orchestrator *dataOrchestrator) GetCategory(id int64) (*movie.Category, error) {
	return orchestrator.MovieStore.GetCategory(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) ListCategories() ([]*movie.Category, error) {
	return orchestrator.MovieStore.ListCategories(orchestrator.db.GetSqlxDb())
}

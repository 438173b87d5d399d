package movie

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/kinovod/kino/internal/database"
)

var (
	ErrMovieNotFound    = errors.New("movie does not exist")
	ErrCategoryNotFound = errors.New("category does not exist")
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// CreateMovie inserts a new movie row, populating the ID and timestamps on
// the model provided. Intended to run inside a wrapped transaction so the
// caller can defer pipeline dispatch until after commit.
func (store *Store) CreateMovie(db database.Queryable, movie *Movie) error {
	err := db.Get(movie, `
		INSERT INTO movies(title, description, category_id, source_path)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, movie.Title, movie.Description, movie.CategoryID, movie.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to insert new movie: %w", err)
	}

	return nil
}

func (store *Store) GetMovie(db database.Queryable, id int64) (*Movie, error) {
	var result Movie
	if err := db.Get(&result, `SELECT * FROM movies WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}

		return nil, err
	}

	return &result, nil
}

func (store *Store) ListMovies(db database.Queryable) ([]*MovieListResult, error) {
	query, args, err := selectMovieBuilder().ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list movies query: %w", err)
	}

	var results []MovieListResult
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	output := make([]*MovieListResult, len(results))
	for k := range results {
		output[k] = &results[k]
	}

	return output, nil
}

// SetThumbnailPath records the thumbnail reference for the movie. The
// guard on the existing value keeps the field write-once; a second call
// for the same movie is a no-op.
func (store *Store) SetThumbnailPath(db database.Queryable, movieID int64, path string) error {
	_, err := db.Exec(`
		UPDATE movies
		SET thumbnail_path=$1, updated_at=current_timestamp
		WHERE id=$2 AND thumbnail_path IS NULL
	`, path, movieID)
	return err
}

// SetPlaylistPath persists the playlist reference in a single atomic field
// update; this is the Finalizing write of the pipeline and only happens
// once every rendition target has succeeded.
func (store *Store) SetPlaylistPath(db database.Queryable, movieID int64, path string) error {
	_, err := db.Exec(`
		UPDATE movies
		SET playlist_path=$1, updated_at=current_timestamp
		WHERE id=$2
	`, path, movieID)
	return err
}

// DeleteMovie removes the movie row and returns the deleted record so the
// caller can hand its source path to the artifact reconciler.
func (store *Store) DeleteMovie(db database.Queryable, movieID int64) (*Movie, error) {
	var deleted Movie
	if err := db.Get(&deleted, `DELETE FROM movies WHERE id=$1 RETURNING *`, movieID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}

		return nil, err
	}

	return &deleted, nil
}

func (store *Store) CreateCategory(db database.Queryable, name string) (*Category, error) {
	var result Category
	err := db.Get(&result, `
		INSERT INTO categories(name) VALUES ($1)
		ON CONFLICT(name) DO UPDATE SET name=EXCLUDED.name
		RETURNING *
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert category %q: %w", name, err)
	}

	return &result, nil
}

func (store *Store) GetCategory(db database.Queryable, id int64) (*Category, error) {
	var result Category
	if err := db.Get(&result, `SELECT * FROM categories WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}

		return nil, err
	}

	return &result, nil
}

func (store *Store) ListCategories(db database.Queryable) ([]*Category, error) {
	var results []Category
	if err := db.Select(&results, `SELECT * FROM categories ORDER BY name`); err != nil {
		return nil, err
	}

	output := make([]*Category, len(results))
	for k := range results {
		output[k] = &results[k]
	}

	return output, nil
}

func selectMovieBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("movies.*", "categories.name AS category_name").
		From("movies").
		Join("categories ON categories.id = movies.category_id").
		OrderBy("movies.created_at DESC")
}

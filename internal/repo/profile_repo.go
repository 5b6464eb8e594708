package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/proposal/internal/model"
	"github.com/xxxsen/proposal/internal/pkg/dbutil"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

var profileFields = []string{"id", "user_id", "cv_text", "embedding", "embed_model", "source_file", "ctime", "mtime"}

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Upsert writes the profile of p.UserID and returns the stored id. An existing
// row keeps its id and ctime; text, embedding and mtime are replaced. The
// unique index on user_id makes concurrent uploads for one owner converge on
// a single row.
func (r *ProfileRepo) Upsert(ctx context.Context, p *model.Profile) (string, error) {
	const query = `
		INSERT INTO profiles (id, user_id, cv_text, embedding, embed_model, source_file, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			cv_text = EXCLUDED.cv_text,
			embedding = EXCLUDED.embedding,
			embed_model = EXCLUDED.embed_model,
			source_file = EXCLUDED.source_file,
			mtime = EXCLUDED.mtime
		RETURNING id
	`
	row := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.UserID,
		p.CVText,
		pgvector.NewVector(p.Embedding),
		p.EmbedModel,
		p.SourceFile,
		p.Ctime,
		p.Mtime,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *ProfileRepo) GetByUser(ctx context.Context, userID string) (*model.Profile, error) {
	return r.getOne(ctx, map[string]interface{}{"user_id": userID})
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *ProfileRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Profile, error) {
	sqlStr, args, err := builder.BuildSelect("profiles", where, profileFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// NearestByUser returns the ids of the k profiles of userID closest to vec by
// cosine distance, closest first.
func (r *ProfileRepo) NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]string, error) {
	if k <= 0 {
		k = 1
	}
	const query = `
		SELECT id
		FROM profiles
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStale returns profiles embedded with a model other than embedModel.
func (r *ProfileRepo) ListStale(ctx context.Context, embedModel string, limit int) ([]model.Profile, error) {
	const query = `
		SELECT id, user_id, cv_text, embedding, embed_model, source_file, ctime, mtime
		FROM profiles
		WHERE embed_model <> $1
		ORDER BY mtime ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, embedModel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProfileRepo) UpdateEmbedding(ctx context.Context, id string, vec []float32, embedModel string, mtime int64) error {
	const query = `UPDATE profiles SET embedding = $1, embed_model = $2, mtime = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, pgvector.NewVector(vec), embedModel, mtime, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var p model.Profile
	var emb pgvector.Vector
	if err := row.Scan(&p.ID, &p.UserID, &p.CVText, &emb, &p.EmbedModel, &p.SourceFile, &p.Ctime, &p.Mtime); err != nil {
		return nil, err
	}
	p.Embedding = emb.Slice()
	return &p, nil
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/extract"
	"github.com/xxxsen/proposal/internal/filestore"
	"github.com/xxxsen/proposal/internal/model"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

type ProfileRepository interface {
	Upsert(ctx context.Context, p *model.Profile) (string, error)
	GetByUser(ctx context.Context, userID string) (*model.Profile, error)
	ListStale(ctx context.Context, embedModel string, limit int) ([]model.Profile, error)
	UpdateEmbedding(ctx context.Context, id string, vec []float32, embedModel string, mtime int64) error
}

type ProfileService struct {
	profiles ProfileRepository
	embedder ai.IEmbedder
	files    filestore.Store
	now      func() time.Time
}

func NewProfileService(profiles ProfileRepository, embedder ai.IEmbedder, files filestore.Store) *ProfileService {
	return &ProfileService{profiles: profiles, embedder: embedder, files: files, now: time.Now}
}

// UploadCV embeds the CV and stores it as the owner's only profile. A second
// upload replaces text and embedding but keeps the profile id.
func (s *ProfileService) UploadCV(ctx context.Context, userID string, cvText string) (string, error) {
	return s.upsert(ctx, userID, cvText, "")
}

// UploadCVFile extracts the text of a pdf, docx or txt upload, keeps the
// original file and stores the text as the owner's profile.
func (s *ProfileService) UploadCVFile(ctx context.Context, userID string, fileName string, data []byte) (string, error) {
	text, err := extract.Text(ctx, fileName, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text found in %s", appErr.ErrInvalid, fileName)
	}
	key := ""
	if s.files != nil {
		key = userID + "/" + newID() + strings.ToLower(filepath.Ext(fileName))
		contentType := mime.TypeByExtension(filepath.Ext(fileName))
		if err := s.files.Save(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			return "", fmt.Errorf("save cv file: %w", err)
		}
	}
	return s.upsert(ctx, userID, text, key)
}

func (s *ProfileService) upsert(ctx context.Context, userID string, cvText string, sourceFile string) (string, error) {
	vec, err := s.embedder.Embed(ctx, cvText, ai.TaskRetrievalDocument)
	if err != nil {
		return "", fmt.Errorf("embed cv: %w", err)
	}
	now := s.now().UnixMilli()
	id, err := s.profiles.Upsert(ctx, &model.Profile{
		ID:         newID(),
		UserID:     userID,
		CVText:     cvText,
		Embedding:  vec,
		EmbedModel: s.embedder.ModelName(),
		SourceFile: sourceFile,
		Ctime:      now,
		Mtime:      now,
	})
	if err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Info("profile saved",
		zap.String("user_id", userID),
		zap.String("profile_id", id),
		zap.Int("cv_chars", len([]rune(cvText))))
	return id, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return s.profiles.GetByUser(ctx, userID)
}

// ReembedStale recomputes embeddings of profiles written by another model.
// It returns how many profiles were updated.
func (s *ProfileService) ReembedStale(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 20
	}
	modelName := s.embedder.ModelName()
	updated := 0
	for {
		items, err := s.profiles.ListStale(ctx, modelName, batch)
		if err != nil {
			return updated, err
		}
		if len(items) == 0 {
			return updated, nil
		}
		for _, p := range items {
			vec, err := s.embedder.Embed(ctx, p.CVText, ai.TaskRetrievalDocument)
			if err != nil {
				return updated, fmt.Errorf("embed profile %s: %w", p.ID, err)
			}
			if err := s.profiles.UpdateEmbedding(ctx, p.ID, vec, modelName, s.now().UnixMilli()); err != nil {
				if appErr.IsNotFound(err) {
					continue
				}
				return updated, err
			}
			updated++
		}
		if len(items) < batch {
			return updated, nil
		}
	}
}

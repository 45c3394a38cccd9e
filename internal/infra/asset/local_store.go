package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	repo "inventory/internal/repository"

	"github.com/google/uuid"
)

const folder = "product_images"

// LocalStore はディスクに画像を置き、baseURL配下で配信する。
type LocalStore struct {
	root    string
	baseURL string
}

var _ repo.AssetStore = (*LocalStore)(nil)

func NewLocalStore(root string, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, folder), 0o755); err != nil {
		return nil, fmt.Errorf("asset: prepare %s: %w", root, err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, ext string, content io.Reader) (repo.Asset, error) {
	if err := ctx.Err(); err != nil {
		return repo.Asset{}, err
	}

	publicID := path.Join(folder, uuid.NewString()+ext)
	dst := filepath.Join(s.root, filepath.FromSlash(publicID))

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return repo.Asset{}, fmt.Errorf("asset: create: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return repo.Asset{}, fmt.Errorf("asset: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return repo.Asset{}, fmt.Errorf("asset: close: %w", err)
	}

	return repo.Asset{
		PublicID: publicID,
		URL:      s.baseURL + "/" + publicID,
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, publicID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// root外は触らない
	clean := path.Clean("/" + publicID)
	if !strings.HasPrefix(clean, "/"+folder+"/") {
		return fmt.Errorf("asset: invalid id %q", publicID)
	}

	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("asset: delete: %w", err)
	}
	return nil
}

// Package resolver maps encoded image references back to files on disk.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	emberrors "github.com/23skdu/embedview/internal/errors"
	"github.com/23skdu/embedview/internal/meta"
)

// ContentType is declared for every served image regardless of its actual encoding.
const ContentType = "image/jpeg"

var (
	errNotRegular    = errors.New("not a regular file")
	errOutsideRoot   = errors.New("path escapes image root")
	errRelativeToken = errors.New("decoded path is not absolute")
)

// Options configures a Resolver.
type Options struct {
	// Root, when set, confines resolution to files under this directory.
	// Empty means decoded paths are trusted verbatim.
	Root string
}

// Image is a resolved image resource.
type Image struct {
	Path        string
	ContentType string
	Data        []byte
}

// Resolver resolves image tokens. It performs no caching: every call re-validates
// and re-reads the file.
type Resolver struct {
	root   string
	logger zerolog.Logger
}

// New creates a Resolver. A configured Root must be an existing directory.
func New(opts Options, logger zerolog.Logger) (*Resolver, error) {
	r := &Resolver{logger: logger.With().Str("component", "resolver").Logger()}
	if opts.Root == "" {
		return r, nil
	}

	root, err := filepath.Abs(opts.Root)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return nil, emberrors.WrapConfigurationError(err, "new_resolver", "invalid image root")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, emberrors.WrapConfigurationError(err, "new_resolver", "invalid image root")
	}
	if !info.IsDir() {
		return nil, emberrors.WrapConfigurationError(fmt.Errorf("%s is not a directory", root), "new_resolver", "invalid image root")
	}
	r.root = root
	return r, nil
}

// Root returns the containment directory, or "" when unrestricted.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve decodes token and reads the file it names. Every failure is reported
// as image_not_found; the underlying cause is kept in the chain for logging only.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := meta.DecodeRef(token)
	if err != nil {
		return nil, r.notFound(token, err)
	}
	r.logger.Debug().Str("path", path).Msg("decoded image reference")

	if r.root != "" {
		if err := r.contain(path); err != nil {
			return nil, r.notFound(path, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, r.notFound(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, r.notFound(path, errNotRegular)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, r.notFound(path, err)
	}

	return &Image{Path: path, ContentType: ContentType, Data: data}, nil
}

func (r *Resolver) contain(path string) error {
	if !filepath.IsAbs(path) {
		return errRelativeToken
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(r.root, resolved)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errOutsideRoot
	}
	return nil
}

func (r *Resolver) notFound(path string, cause error) error {
	r.logger.Debug().Str("path", path).Err(cause).Msg("image not found")
	return emberrors.NewImageNotFound(cause).WithContext("path", path)
}

package gitrepo

import (
	"context"
	"fmt"
)

// CurrentRef returns the checked-out branch name, or the commit hash
// when HEAD is detached
func (r *Repo) CurrentRef(ctx context.Context) (string, error) {
	if name, err := r.run(ctx, "symbolic-ref", "--short", "-q", "HEAD"); err == nil && name != "" {
		return name, nil
	}
	return r.run(ctx, "rev-parse", "HEAD")
}

// checkout switches the working tree. Callers must hold checkoutMu.
func (r *Repo) checkout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", "--quiet", ref)
	return err
}

// WithCheckout acquires the working tree, checks out ref, runs fn, and
// restores the previously checked-out ref on every exit path. The
// callback receives a handle whose Checkout switches commits within
// the held scope.
func (r *Repo) WithCheckout(ctx context.Context, ref string, fn func(w *Worktree) error) (err error) {
	r.checkoutMu.Lock()
	defer r.checkoutMu.Unlock()

	previous, err := r.CurrentRef(ctx)
	if err != nil {
		return fmt.Errorf("resolving current ref: %w", err)
	}

	if err := r.checkout(ctx, ref); err != nil {
		return err
	}
	defer func() {
		if restoreErr := r.checkout(ctx, previous); restoreErr != nil && err == nil {
			err = fmt.Errorf("restoring ref %q: %w", previous, restoreErr)
		}
	}()

	return fn(&Worktree{repo: r})
}

// Worktree is the exclusively-held working tree inside a WithCheckout
// scope
type Worktree struct {
	repo *Repo
}

// Checkout switches the held working tree to another commit
func (w *Worktree) Checkout(ctx context.Context, ref string) error {
	return w.repo.checkout(ctx, ref)
}

// Dir returns the working tree root
func (w *Worktree) Dir() string {
	return w.repo.dir
}

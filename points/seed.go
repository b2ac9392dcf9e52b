package points

import (
	"context"
	"errors"
	"fmt"
)

// Seed makes sure the default user and the given payers exist.
// Existing rows are left untouched, so Seed is safe to run on every start.
func Seed(ctx context.Context, store LedgerStore, user User, payers []string) error {
	if _, err := store.GetUser(ctx, user.ID); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("seed user %d: %w", user.ID, err)
		}
		if err := store.SaveUser(ctx, User{ID: user.ID, Name: user.Name}); err != nil {
			return fmt.Errorf("seed user %d: %w", user.ID, err)
		}
	}

	for _, name := range payers {
		if _, err := store.CreatePayer(ctx, name); err != nil && !errors.Is(err, ErrPayerExists) {
			return fmt.Errorf("seed payer %q: %w", name, err)
		}
	}
	return nil
}

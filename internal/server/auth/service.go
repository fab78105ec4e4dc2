package auth

import (
	"context"
	"errors"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// Service authenticates callers from bearer tokens and authorizes operations
// against resource protection settings.
type Service struct {
	secretKey []byte
	resources uow.ResourceUnitOfWork
}

func NewService(secretKey []byte, resourceUOW uow.ResourceUnitOfWork) *Service {
	return &Service{secretKey: secretKey, resources: resourceUOW}
}

// Authenticate verifies the credentials and returns the user they encode.
func (s *Service) Authenticate(_ context.Context, credentials string) (*domain.User, error) {
	return GetUserFromToken(credentials, s.secretKey)
}

// Authorize reports whether user may operate at level on every listed
// resource. Writes are always protected; reads only when the resource says
// so. An unknown resource id fails with ResourceNotFoundError.
func (s *Service) Authorize(ctx context.Context, level domain.PermissionLevel, user *domain.User, resourceIDs []string) (bool, error) {
	allowed := true
	err := s.resources.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		for _, resourceID := range resourceIDs {
			res, err := tx.Resources().ByResourceID(ctx, resourceID, 0)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.ResourceNotFoundError{ResourceID: resourceID}
				}
				return err
			}
			if res.IsProtected(level) && user.LevelFor(resourceID) < level {
				allowed = false
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

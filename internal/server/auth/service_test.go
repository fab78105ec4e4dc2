package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/memstore"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

func seedResource(t *testing.T, resourceUOW uow.ResourceUnitOfWork, cfg domain.ResourceConfig) {
	t.Helper()
	err := resourceUOW.Do(context.Background(), func(ctx context.Context, tx uow.ResourceTx) error {
		res, err := domain.NewResource(uuid.New(), cfg, "test", time.Now())
		if err != nil {
			return err
		}
		return tx.Resources().Put(ctx, res)
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}
}

func newAuthService(t *testing.T) *Service {
	t.Helper()
	resourceUOW := uow.NewMemoryResourceUnitOfWork(memstore.NewStore())

	seedResource(t, resourceUOW, domain.ResourceConfig{
		ResourceID: "open",
		IDField:    "code",
		Fields:     map[string]domain.FieldConfig{"code": {Type: "string"}},
	})
	seedResource(t, resourceUOW, domain.ResourceConfig{
		ResourceID: "closed",
		IDField:    "code",
		Fields:     map[string]domain.FieldConfig{"code": {Type: "string"}},
		Protected:  &domain.ProtectedConfig{Read: true},
	})

	return NewService(testSecret, resourceUOW)
}

func TestAuthorize_ReadOpenResourceNeedsNoGrant(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ok, err := svc.Authorize(context.Background(), domain.PermissionRead, nil, []string{"open"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !ok {
		t.Fatal("anonymous read of an unprotected resource must be allowed")
	}
}

func TestAuthorize_ReadProtectedResource(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	ok, err := svc.Authorize(ctx, domain.PermissionRead, nil, []string{"closed"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if ok {
		t.Fatal("anonymous read of a protected resource must be denied")
	}

	reader := &domain.User{
		Identifier:  "alice",
		Permissions: map[string]domain.PermissionLevel{"closed": domain.PermissionRead},
	}
	ok, err = svc.Authorize(ctx, domain.PermissionRead, reader, []string{"closed"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !ok {
		t.Fatal("granted read must be allowed")
	}
}

func TestAuthorize_WriteAlwaysProtected(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	reader := &domain.User{
		Identifier:  "alice",
		Permissions: map[string]domain.PermissionLevel{"open": domain.PermissionRead},
	}
	ok, err := svc.Authorize(ctx, domain.PermissionWrite, reader, []string{"open"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if ok {
		t.Fatal("write with a read grant must be denied")
	}

	writer := &domain.User{
		Identifier:  "bob",
		Permissions: map[string]domain.PermissionLevel{"open": domain.PermissionWrite},
	}
	ok, err = svc.Authorize(ctx, domain.PermissionWrite, writer, []string{"open"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !ok {
		t.Fatal("granted write must be allowed")
	}
}

func TestAuthorize_AllListedResourcesMustPass(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	user := &domain.User{
		Identifier:  "alice",
		Permissions: map[string]domain.PermissionLevel{"open": domain.PermissionWrite},
	}
	ok, err := svc.Authorize(context.Background(), domain.PermissionWrite, user, []string{"open", "closed"})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if ok {
		t.Fatal("one missing grant must deny the whole request")
	}
}

func TestAuthorize_UnknownResource(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	_, err := svc.Authorize(context.Background(), domain.PermissionRead, nil, []string{"nope"})
	var notFound *domain.ResourceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want ResourceNotFoundError, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	user := &domain.User{
		Identifier:  "alice",
		Permissions: map[string]domain.PermissionLevel{"closed": domain.PermissionAdmin},
	}
	token, err := GenerateToken(user, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if got.Identifier != "alice" || got.LevelFor("closed") != domain.PermissionAdmin {
		t.Fatalf("user: %+v", got)
	}
}

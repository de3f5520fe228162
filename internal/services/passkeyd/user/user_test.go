package user

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor/actortest"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
)

const testApp = "app-a"

func newActor(t *testing.T) (*Actor, *actor.MemoryStorage) {
	t.Helper()
	storage := actor.NewMemoryStorage()
	a, err := New(actor.Config{Storage: storage, Clock: actortest.NewClock(time.Unix(1_700_000_000, 0))})
	if err != nil {
		t.Fatalf("new user actor: %v", err)
	}
	t.Cleanup(func() { _ = a.Host().Close(context.Background()) })
	return a, storage
}

func create(t *testing.T, a *Actor, id string) {
	t.Helper()
	_, err := a.Create(context.Background(), id, CreateInput{
		App:     testApp,
		Aliases: []string{"alice"},
		Email:   "alice@example.com",
		Passkey: &PasskeyLink{PasskeyID: "pk-1", CredentialID: "cred-1", Name: "laptop"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreateSucceedsOnceUnderConcurrency(t *testing.T) {
	a, storage := newActor(t)
	const callers = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		exists int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Create(context.Background(), "u1", CreateInput{App: testApp})
			mu.Lock()
			defer mu.Unlock()
			switch apperrors.GetCode(err) {
			case apperrors.CodeUserExists:
				exists++
			default:
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				ok++
			}
		}()
	}
	wg.Wait()
	if ok != 1 || exists != callers-1 {
		t.Fatalf("ok = %d, exists = %d, want 1 and %d", ok, exists, callers-1)
	}
	if _, found := storage.Snapshot(Kind, "u1")[fieldMetadata]; !found {
		t.Fatal("expected metadata to be persisted before create returns")
	}
}

func TestCreateSeedsRecoveryAndPasskeys(t *testing.T) {
	a, _ := newActor(t)
	create(t, a, "u1")

	d, err := a.Data(context.Background(), "u1", guard.User(testApp), DataOptions{Recovery: true, Passkeys: true})
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if d.Metadata.App != testApp || len(d.Metadata.Aliases) != 1 {
		t.Fatalf("metadata = %+v", d.Metadata)
	}
	if len(d.Recovery.Emails) != 1 || !d.Recovery.Emails[0].Primary || d.Recovery.Emails[0].Verified {
		t.Fatalf("emails = %+v, want one unverified primary", d.Recovery.Emails)
	}
	if len(d.Passkeys) != 1 || d.Passkeys[0].UserID != "u1" {
		t.Fatalf("passkeys = %+v, want one linked to u1", d.Passkeys)
	}
}

func TestDataLeastDisclosure(t *testing.T) {
	a, _ := newActor(t)
	create(t, a, "u1")
	d, err := a.Data(context.Background(), "u1", guard.User(testApp), DataOptions{})
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if d.Recovery != nil || d.Passkeys != nil {
		t.Fatalf("data = %+v, want metadata only", d)
	}
}

func TestPasskeyLinks(t *testing.T) {
	a, _ := newActor(t)
	create(t, a, "u1")
	ctx := context.Background()
	token := guard.User(testApp)

	links, err := a.LinkPasskey(ctx, "u1", token, PasskeyLink{PasskeyID: "pk-2", CredentialID: "cred-2", Name: "phone"})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2", len(links))
	}
	links, err = a.LinkPasskey(ctx, "u1", token, PasskeyLink{PasskeyID: "pk-2", CredentialID: "cred-2", Name: "phone"})
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links after relink = %d, want 2", len(links))
	}

	links, err = a.RenamePasskey(ctx, "u1", token, "pk-2", "tablet")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if links[1].Name != "tablet" {
		t.Fatalf("name = %q, want %q", links[1].Name, "tablet")
	}

	links, err = a.RemovePasskey(ctx, "u1", token, "pk-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(links) != 1 || links[0].PasskeyID != "pk-2" {
		t.Fatalf("links = %+v, want only pk-2", links)
	}

	if _, err := a.RenamePasskey(ctx, "u1", token, "pk-1", "x"); apperrors.GetCode(err) != apperrors.CodePasskeyNotFound {
		t.Fatalf("rename missing err = %v, want %s", err, apperrors.CodePasskeyNotFound)
	}
	if _, err := a.RemovePasskey(ctx, "u1", token, "pk-1"); apperrors.GetCode(err) != apperrors.CodePasskeyNotFound {
		t.Fatalf("remove missing err = %v, want %s", err, apperrors.CodePasskeyNotFound)
	}
}

func TestEmails(t *testing.T) {
	a, _ := newActor(t)
	create(t, a, "u1")
	ctx := context.Background()
	token := guard.User(testApp)

	if _, err := a.VerifyEmail(ctx, "u1", token, "bob@example.com"); apperrors.GetCode(err) != apperrors.CodeEmailNotFound {
		t.Fatalf("verify unknown err = %v, want %s", err, apperrors.CodeEmailNotFound)
	}
	r, err := a.AddEmail(ctx, "u1", token, "bob@example.com")
	if err != nil {
		t.Fatalf("add email: %v", err)
	}
	if len(r.Emails) != 2 || r.Emails[1].Primary {
		t.Fatalf("emails = %+v, want second non-primary", r.Emails)
	}
	if r, err = a.AddEmail(ctx, "u1", token, "BOB@example.com"); err != nil || len(r.Emails) != 2 {
		t.Fatalf("re-add = %+v, %v; want no change", r.Emails, err)
	}
	r, err = a.VerifyEmail(ctx, "u1", token, "alice@example.com")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !r.Emails[0].Verified {
		t.Fatal("expected alice to be verified")
	}
}

func TestGuardedOperations(t *testing.T) {
	a, _ := newActor(t)
	ctx := context.Background()

	if _, err := a.Data(ctx, "missing", guard.User(testApp), DataOptions{}); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Fatalf("unoccupied err = %v, want %s", err, apperrors.CodeNotFound)
	}
	create(t, a, "u1")
	tests := []struct {
		token string
		want  apperrors.Code
	}{
		{token: "", want: apperrors.CodeAuthorizationMissing},
		{token: "passkey:app-a:u1", want: apperrors.CodeAuthorizationInvalid},
		{token: guard.User("app-b"), want: apperrors.CodeAppMismatch},
	}
	for _, tt := range tests {
		if _, err := a.LinkPasskey(ctx, "u1", tt.token, PasskeyLink{PasskeyID: "pk-9"}); apperrors.GetCode(err) != tt.want {
			t.Fatalf("token %q err = %v, want %s", tt.token, err, tt.want)
		}
	}
}
